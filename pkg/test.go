package pkg

import (
	"fmt"
	gio "io"
	"math"
	"os"
	"sort"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"

	"github.com/nlpodyssey/spago/pkg/mat/rand"
	"github.com/nlpodyssey/spago/pkg/ml/ag"
	"github.com/nlpodyssey/spago/pkg/ml/nn"
	"github.com/nlpodyssey/spago/pkg/ml/stats"

	"widedeep/pkg/io"
	"widedeep/pkg/model"
)

type NoopWriter struct{}

func (x NoopWriter) Write(p []byte) (n int, err error) {
	return len(p), nil
}

func printDataErrors(errors []io.DataError) {
	for _, err := range errors {
		log.Error().Msgf("Error parsing data at line %d: %s", err.Line, err.Error)
	}
}

// Test runs a persisted model on the given input data and reports
// classification metrics. An optional weights file overrides the model's
// parameters; an optional output file receives one line per prediction.
func Test(modelFileName, weightsFileName, inputFileName, outputFileName string) error {
	m, err := io.LoadModelFromFile(modelFileName, weightsFileName)
	if err != nil {
		return err
	}

	_, data, dataErrors, err := io.LoadData(io.DataParameters{
		DataFile:  inputFileName,
		BatchSize: 32,
	}, m.MetaData)
	if err != nil {
		return fmt.Errorf("error loading data from %s: %w", inputFileName, err)
	}
	printDataErrors(dataErrors)
	if data.Size() == 0 {
		return fmt.Errorf("no data to test")
	}
	return testInternal(m, data, outputFileName)
}

type classificationEvaluator struct {
	predictionCount int
	loss            float64
	metrics         map[string]*stats.ClassMetrics
	model           *model.Model
	outputWriter    gio.Writer

	// class-1 probabilities and labels, kept for AUC on binary targets
	scores    []float64
	positives []bool
}

func (c *classificationEvaluator) evaluatePrediction(output ag.Node, record *io.DataRecord) {
	logProbs := output.Value().Data()
	class, maxLogProb := argmax(logProbs)
	targetMap := c.model.MetaData.TargetMap
	predictedClass := targetMap.IndexToName[class]
	label := targetMap.IndexToName[int(record.Target)]

	// the model output is log-softmax, so the negative log-likelihood is a
	// direct read
	c.loss -= logProbs[int(record.Target)]
	c.predictionCount++

	fmt.Fprintf(c.outputWriter, "%s,%s,%.5f\n", label, predictedClass, maxLogProb)

	labelClassMetrics, ok := c.metrics[label]
	if !ok {
		labelClassMetrics = stats.NewMetricCounter()
		c.metrics[label] = labelClassMetrics
	}
	predictedClassMetrics, ok := c.metrics[predictedClass]
	if !ok {
		predictedClassMetrics = stats.NewMetricCounter()
		c.metrics[predictedClass] = predictedClassMetrics
	}

	if label == predictedClass {
		labelClassMetrics.IncTruePos()
	} else {
		labelClassMetrics.IncFalseNeg()
		predictedClassMetrics.IncFalsePos()
	}

	if c.model.MetaData.NumClasses() == 2 {
		c.scores = append(c.scores, math.Exp(logProbs[1]))
		c.positives = append(c.positives, int(record.Target) == 1)
	}
}

func (c *classificationEvaluator) logMetrics() {
	// Sort class names for deterministic output
	sortedClasses := sortClasses(c.metrics)
	for _, class := range sortedClasses {
		result := c.metrics[class]
		log.Info().Str("Class", class).
			Int("TP", result.TruePos).
			Int("FP", result.FalsePos).
			Int("TN", result.TrueNeg).
			Int("FN", result.FalseNeg).
			Float64("Precision", result.Precision()).
			Float64("Recall", result.Recall()).
			Float64("F1", result.F1Score()).
			Msg("")
	}

	microF1, macroF1 := computeOverallF1(c.metrics)
	log.Info().Float64("MacroF1", macroF1).Float64("MicroF1", microF1).Msg("")

	if len(c.scores) > 0 {
		log.Info().Float64("AUC", rocAUC(c.scores, c.positives)).Msg("")
	}
}

func (c *classificationEvaluator) avgLoss() float64 {
	return c.loss / float64(c.predictionCount)
}

func testInternal(m *model.Model, data *io.DataSet, outputFileName string) error {
	var outputWriter gio.Writer
	if outputFileName != "" {
		outputFile, err := os.Create(outputFileName)
		if err != nil {
			return fmt.Errorf("error opening output file %s: %w", outputFileName, err)
		}
		defer outputFile.Close()
		outputWriter = outputFile
	} else {
		outputWriter = NoopWriter{}
	}

	evaluator := &classificationEvaluator{
		metrics:      map[string]*stats.ClassMetrics{},
		model:        m,
		outputWriter: outputWriter,
	}

	g := ag.NewGraph(ag.Rand(rand.NewLockedRand(42)))
	data.ResetOrder(io.OriginalOrder)
	for {
		batch := data.Next()
		if len(batch) == 0 {
			break
		}
		predictions := predict(g, m, batch)
		for i, prediction := range predictions {
			evaluator.evaluatePrediction(prediction, batch[i])
		}
		g.Clear()
	}

	evaluator.logMetrics()
	log.Info().Float64("Loss", evaluator.avgLoss()).Msg("")
	return nil
}

func predict(g *ag.Graph, m *model.Model, batch io.DataBatch) []ag.Node {
	input := createInputNodes(batch, g)
	proc := m.Network.NewProc(g)
	proc.SetMode(nn.Inference)
	return proc.Forward(input...)
}

func computeOverallF1(metrics map[string]*stats.ClassMetrics) (float64, float64) {
	macroF1 := 0.0
	for _, metric := range metrics {
		macroF1 += metric.F1Score()
	}
	macroF1 /= float64(len(metrics))

	micro := stats.NewMetricCounter()
	for _, result := range metrics {
		micro.TruePos += result.TruePos
		micro.FalsePos += result.FalsePos
		micro.FalseNeg += result.FalseNeg
		micro.TrueNeg += result.TrueNeg
	}
	return macroF1, micro.F1Score()
}

func sortClasses(metrics map[string]*stats.ClassMetrics) []string {
	result := make([]string, 0, len(metrics))
	for class := range metrics {
		result = append(result, class)
	}
	sort.Strings(result)
	return result
}

// rocAUC computes the area under the ROC curve of class-1 scores against the
// true labels.
func rocAUC(scores []float64, positives []bool) float64 {
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool {
		return scores[order[i]] < scores[order[j]]
	})

	y := make([]float64, len(scores))
	classes := make([]bool, len(scores))
	for i, ind := range order {
		y[i] = scores[ind]
		classes[i] = positives[ind]
	}

	tpr, fpr, _ := stat.ROC(nil, y, classes, nil)
	return math.Abs(integrate.Trapezoidal(fpr, tpr))
}

func argmax(data []float64) (int, float64) {
	maxInd := 0
	for i := range data {
		if data[i] > data[maxInd] {
			maxInd = i
		}
	}
	return maxInd, data[maxInd]
}
