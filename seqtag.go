package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"seqtag/pkg"
)

func TrainCommand() *cobra.Command {
	var dataConfigFile string
	var trainFeaturesFile string
	var trainLabelsFile string
	var validFeaturesFile string
	var validLabelsFile string
	var outputFile string
	var modelParameters pkg.ModelParameters
	var trainingParameters pkg.TrainingParameters

	var cmd = &cobra.Command{
		Use:   "train -c dataConfig -i trainFeatures -l trainLabels -o outputFile",
		Short: "Trains a new tagging model on the provided training data and saves the trained model",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return pkg.Train(dataConfigFile, trainFeaturesFile, trainLabelsFile,
				validFeaturesFile, validLabelsFile, outputFile, modelParameters, trainingParameters)
		},
	}

	cmd.Flags().StringVarP(&dataConfigFile, "data-config", "c", "", "name of the data configuration file")
	cmd.Flags().StringVarP(&trainFeaturesFile, "train-features", "i", "", "name of the training features file")
	cmd.Flags().StringVarP(&trainLabelsFile, "train-labels", "l", "", "name of the training labels file")
	cmd.Flags().StringVarP(&validFeaturesFile, "valid-features", "", "", "name of the validation features file")
	cmd.Flags().StringVarP(&validLabelsFile, "valid-labels", "", "", "name of the validation labels file")
	cmd.Flags().StringVarP(&outputFile, "output-file", "o", "", "name of the file to save the model to")

	cmd.Flags().IntVarP(&trainingParameters.BatchSize, "batch-size", "b", 16, "batch size")
	cmd.Flags().Float64VarP(&trainingParameters.LearningRate, "learning-rate", "", 0.001, "learning rate")
	cmd.Flags().Float64VarP(&trainingParameters.GradientClipThreshold, "gradient-clip", "", 5.0, "gradient value clipping threshold")
	cmd.Flags().IntVarP(&trainingParameters.ReportInterval, "report-interval", "r", 10, "loss report interval")
	cmd.Flags().IntVarP(&trainingParameters.NumEpochs, "num-epochs", "n", 10, "number of epochs to train")
	cmd.Flags().Uint64VarP(&trainingParameters.RndSeed, "random-seed", "x", 42, "random seed")
	cmd.Flags().Float64VarP(&trainingParameters.ValidationSplit, "validation-split", "", 0.1, "fraction of training data held out when no validation files are given")

	cmd.Flags().StringVarP(&modelParameters.Encoder, "encoder", "e", "bilstm", "encoder type: bilstm or lstm")
	cmd.Flags().IntVarP(&modelParameters.EmbeddingDimension, "embedding-size", "d", 64, "size of word embeddings")
	cmd.Flags().IntVarP(&modelParameters.HiddenSize, "hidden-size", "s", 128, "size of the encoder hidden state")
	cmd.Flags().Float64VarP(&modelParameters.Dropout, "dropout", "", 0.2, "probability of embedding dropout")
	cmd.Flags().BoolVarP(&modelParameters.CRFDecoding, "crf-decoding", "", false, "add a CRF layer after the encoder")
	cmd.Flags().StringVarP(&modelParameters.PretrainedVectors, "pretrained-vectors", "", "", "name of a text file with pretrained word vectors (optional)")

	_ = cmd.MarkFlagRequired("data-config")
	_ = cmd.MarkFlagRequired("train-features")
	_ = cmd.MarkFlagRequired("train-labels")
	_ = cmd.MarkFlagRequired("output-file")

	return cmd
}

func TagCommand() *cobra.Command {
	var modelFile string
	var inputFile string
	var outputFile string
	var parallelism int

	var cmd = &cobra.Command{
		Use:   "tag -m modelFile [-i inputFile] [-o outputFile]",
		Short: "Tags the provided sentences and writes one label line per input line",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return pkg.Tag(modelFile, inputFile, outputFile, parallelism)
		},
	}

	cmd.Flags().StringVarP(&modelFile, "model", "m", "", "name of the model file")
	cmd.Flags().StringVarP(&inputFile, "input", "i", "", "name of the input file (optional, uses stdin if not present)")
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "name of the output file (optional, uses stdout if not present)")
	cmd.Flags().IntVarP(&parallelism, "parallelism", "p", 4, "number of sentences tagged concurrently")

	_ = cmd.MarkFlagRequired("model")

	return cmd
}

func EvaluateCommand() *cobra.Command {
	var modelFile string
	var featuresFile string
	var labelsFile string
	var outputFile string

	var cmd = &cobra.Command{
		Use:   "evaluate -m modelFile -i featuresFile -l labelsFile [-o outputFile]",
		Short: "Runs the provided model on labeled data and reports token-level metrics",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return pkg.Evaluate(modelFile, featuresFile, labelsFile, outputFile)
		},
	}

	cmd.Flags().StringVarP(&modelFile, "model", "m", "", "name of the model file")
	cmd.Flags().StringVarP(&featuresFile, "features", "i", "", "name of the features file")
	cmd.Flags().StringVarP(&labelsFile, "labels", "l", "", "name of the labels file")
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "name of the predictions output file (optional)")

	_ = cmd.MarkFlagRequired("model")
	_ = cmd.MarkFlagRequired("features")
	_ = cmd.MarkFlagRequired("labels")

	return cmd
}

func ServeCommand() *cobra.Command {
	var modelFile string
	var addr string

	var cmd = &cobra.Command{
		Use:   "serve -m modelFile [-a addr]",
		Short: "Serves the provided model over an HTTP tagging API",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return pkg.Serve(modelFile, addr)
		},
	}

	cmd.Flags().StringVarP(&modelFile, "model", "m", "", "name of the model file")
	cmd.Flags().StringVarP(&addr, "addr", "a", ":8080", "listen address")

	_ = cmd.MarkFlagRequired("model")

	return cmd
}

var logLevel string
var logFormat string

func main() {
	Main := &cobra.Command{Use: "seqtag", PersistentPreRun: setupLogging}

	Main.PersistentFlags().StringVarP(&logLevel, "log-level", "", "info", "Logging level: info error or debug")
	Main.PersistentFlags().StringVarP(&logFormat, "log-format", "", "pretty", "Logging format: pretty or json")

	Main.AddCommand(TrainCommand())
	Main.AddCommand(TagCommand())
	Main.AddCommand(EvaluateCommand())
	Main.AddCommand(ServeCommand())

	if err := Main.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupLogging(cmd *cobra.Command, args []string) {
	switch logLevel {
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	default:
		panic("Invalid logging level specified")
	}

	switch logFormat {
	case "pretty":
		setupPrettyLogging()
	case "json":
	default:
		panic("Invalid log format specified")
	}
}

func setupPrettyLogging() {
	writer := zerolog.ConsoleWriter{Out: os.Stderr}
	writer.FormatFieldValue = func(i interface{}) string {
		switch v := i.(type) {
		case json.Number:
			val, _ := v.Float64()
			return fmt.Sprintf("%.3f", val)
		default:
			return fmt.Sprintf("%s", i)
		}
	}
	log.Logger = log.Output(writer)
}
