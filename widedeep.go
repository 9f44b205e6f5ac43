package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"widedeep/pkg"
	"widedeep/pkg/io"
	"widedeep/pkg/model"

	"github.com/spf13/cobra"
)

func TrainCommand() *cobra.Command {

	var trainFile string
	var testFile string
	var outputFile string
	var weightsFile string
	var modelType string
	var dataParams io.DataParameters
	var trainingParameters pkg.TrainingParameters
	var hiddenLayers []int

	var cmd = &cobra.Command{
		Use:   "train -i trainData -o outputFile",
		Short: "Trains a new model on the provided training data and saves the trained model",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			config := model.Config{
				ModelType:        model.ModelType(modelType),
				HiddenLayerSizes: hiddenLayers,
			}
			return pkg.Train(trainFile, testFile, outputFile, weightsFile, dataParams, config, trainingParameters)
		},
	}

	cmd.Flags().StringVarP(&trainFile, "train-file", "i", "", "name of train file")
	cmd.Flags().StringVarP(&testFile, "test-file", "", "", "name of test file")
	cmd.Flags().StringVarP(&outputFile, "output-file", "o", "", "name of the file to save model to")
	cmd.Flags().StringVarP(&weightsFile, "weights-file", "", "", "name of the file to additionally save the bare model weights to (optional)")
	cmd.Flags().IntVarP(&trainingParameters.BatchSize, "batch-size", "b", 32, "batch size")
	cmd.Flags().Float64VarP(&trainingParameters.LearningRate, "learning-rate", "l", 0.001, "learning rate")
	cmd.Flags().IntVarP(&trainingParameters.ReportInterval, "report-interval", "r", 10, "loss report interval")
	cmd.Flags().IntVarP(&trainingParameters.NumEpochs, "num-epochs", "n", 10, "number of epochs to train")
	cmd.Flags().Uint64VarP(&trainingParameters.RndSeed, "random-seed", "x", 42, "random seed")

	cmd.Flags().StringVarP(&dataParams.TargetColumn, "target-column", "t", model.DefaultLabelColumn, "target column")
	cmd.Flags().StringSliceVarP(&dataParams.WideColumns, "wide-columns", "", nil, "list of sparse columns scored by the wide branch")
	cmd.Flags().StringSliceVarP(&dataParams.CrossColumns, "cross-columns", "", nil, "list of wide cross columns, each a conjunction like colA:colB")
	cmd.Flags().StringSliceVarP(&dataParams.IndicatorColumns, "indicator-columns", "", nil, "list of columns fed to the deep branch as multi-hot vectors")
	cmd.Flags().StringSliceVarP(&dataParams.EmbedColumns, "embed-columns", "", nil, "list of columns fed to the deep branch through embeddings")
	cmd.Flags().IntVarP(&dataParams.EmbedDimension, "embed-dimension", "c", 8, "size of the embedding of each embed column")

	cmd.Flags().StringVarP(&modelType, "model-type", "m", string(model.ModelTypeWideAndDeep), "model type: wide, deep or wide_n_deep")
	cmd.Flags().IntSliceVarP(&hiddenLayers, "hidden-layers", "", nil, "hidden layer sizes of the deep branch (default 40,20,10)")

	_ = cmd.MarkFlagRequired("train-file")
	_ = cmd.MarkFlagRequired("output-file")

	return cmd
}

func TestCommand() *cobra.Command {
	var modelFile string
	var weightsFile string
	var inputFile string
	var outputFile string

	var cmd = &cobra.Command{
		Use:   "test -m modelFile -i inputFile [-w weightsFile] [-o outputFile]",
		Short: "Runs the provided model on the specified data input and optionally writes the predictions",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return pkg.Test(modelFile, weightsFile, inputFile, outputFile)
		},
	}

	cmd.Flags().StringVarP(&modelFile, "model", "m", "", "name of model to test")
	cmd.Flags().StringVarP(&weightsFile, "weights", "w", "", "name of a separately saved weights file (optional)")
	cmd.Flags().StringVarP(&inputFile, "input", "i", "", "name of data input file")
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "name of output file (optional)")

	_ = cmd.MarkFlagRequired("model")
	_ = cmd.MarkFlagRequired("input")

	return cmd
}

var logLevel string
var logFormat string

func main() {

	Main := &cobra.Command{Use: "widedeep", PersistentPreRun: setupLogging}

	Main.PersistentFlags().StringVarP(&logLevel, "log-level", "", "info", "Logging level: info error or debug")
	Main.PersistentFlags().StringVarP(&logFormat, "log-format", "", "pretty", "Logging format: pretty or json")

	Main.AddCommand(TrainCommand())
	Main.AddCommand(TestCommand())

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
