package pkg

import (
	"fmt"
	mrand "math/rand"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"

	"github.com/nlpodyssey/spago/pkg/mat"
	"github.com/nlpodyssey/spago/pkg/mat/rand"
	"github.com/nlpodyssey/spago/pkg/ml/ag"
	"github.com/nlpodyssey/spago/pkg/ml/losses"
	"github.com/nlpodyssey/spago/pkg/ml/nn"
	"github.com/nlpodyssey/spago/pkg/ml/optimizers/gd"
	"github.com/nlpodyssey/spago/pkg/ml/optimizers/gd/adam"

	"widedeep/pkg/io"
	"widedeep/pkg/model"
)

type TrainingParameters struct {
	BatchSize      int
	NumEpochs      int
	LearningRate   float64
	ReportInterval int
	RndSeed        uint64
}

type Trainer struct {
	params    TrainingParameters
	optimizer *gd.GradientDescent
	model     *model.WideAndDeep
}

// Train builds the vocabularies and the network from the training data,
// trains it and saves the resulting model (and optionally its weights alone)
// before evaluating it.
func Train(trainFile, testFile, outputFileName, weightsFileName string,
	dataParams io.DataParameters, config model.Config, trainingParams TrainingParameters) error {

	dataParams.DataFile = trainFile
	dataParams.BatchSize = trainingParams.BatchSize

	metaData, data, dataErrors, err := io.LoadData(dataParams, nil)
	if err != nil {
		return fmt.Errorf("error reading training data: %w", err)
	}
	printDataErrors(dataErrors)
	if data.Size() == 0 {
		return fmt.Errorf("no data to train")
	}

	// Dimensions are only known after the dataset vocabularies are built.
	config.Columns = metaData.Info
	config.NumClasses = metaData.NumClasses()

	net, err := model.New(config)
	if err != nil {
		return err
	}
	net.Init(rand.NewLockedRand(trainingParams.RndSeed))

	t := &Trainer{params: trainingParams, model: net}

	updaterConfig := adam.NewDefaultConfig()
	updaterConfig.StepSize = trainingParams.LearningRate
	updater := adam.New(updaterConfig)
	const GradientClipThreshold = 2000.0 // TODO: get from configuration
	t.optimizer = gd.NewOptimizer(updater, nn.NewDefaultParamsIterator(t.model),
		gd.ClipGradByValue(GradientClipThreshold))

	data.Rand = mrand.New(mrand.NewSource(int64(trainingParams.RndSeed)))
	log.Info().Int("examples", data.Size()).Int("inputSize", metaData.Info.InputSize()).
		Int("classes", config.NumClasses).Str("modelType", string(config.ModelType)).Msg("Training")

	for epoch := 0; epoch < trainingParams.NumEpochs; epoch++ {
		t.optimizer.IncEpoch()
		data.ResetOrder(io.RandomOrder)
		bar := progressbar.New(data.NumBatches())
		for i := 0; ; i++ {
			batch := data.Next()
			if len(batch) == 0 {
				break
			}
			loss := t.trainBatch(batch)
			t.optimizer.Optimize()
			_ = bar.Add(1)
			if i%t.params.ReportInterval == 0 {
				log.Info().Int("epoch", epoch).Int("batch", i).Float64("loss", loss).Msg("")
			}
		}
		_ = bar.Finish()
	}

	m := model.NewModel(metaData, t.model)

	outputFile, err := os.Create(outputFileName)
	if err != nil {
		return fmt.Errorf("error creating output file %s: %w", outputFileName, err)
	}
	defer outputFile.Close()
	if err := io.SaveModel(m, outputFile); err != nil {
		return fmt.Errorf("error saving model to %s: %w", outputFileName, err)
	}

	if weightsFileName != "" {
		weightsFile, err := os.Create(weightsFileName)
		if err != nil {
			return fmt.Errorf("error creating weights file %s: %w", weightsFileName, err)
		}
		defer weightsFile.Close()
		if err := io.SaveWeights(t.model, weightsFile); err != nil {
			return fmt.Errorf("error saving weights to %s: %w", weightsFileName, err)
		}
	}

	if err := testInternal(m, data, ""); err != nil {
		return err
	}

	if testFile != "" {
		testParams := dataParams
		testParams.DataFile = testFile
		_, testData, testDataErrors, err := io.LoadData(testParams, metaData)
		if err != nil {
			return fmt.Errorf("error reading test data: %w", err)
		}
		printDataErrors(testDataErrors)
		return testInternal(m, testData, "")
	}
	return nil
}

func (t *Trainer) trainBatch(batch io.DataBatch) float64 {
	t.optimizer.IncBatch()

	g := ag.NewGraph(ag.Rand(rand.NewLockedRand(t.params.RndSeed)))
	defer g.Clear()
	input := createInputNodes(batch, g)
	proc := t.model.NewProc(g).(*model.Processor)
	proc.Forward(input...)

	loss := g.NewVariable(mat.NewScalar(0), true)
	for i := range batch {
		exampleLoss := losses.CrossEntropy(g, proc.Logits[i], int(batch[i].Target))
		loss = g.Add(loss, exampleLoss)
	}
	loss = g.Div(loss, g.NewScalar(float64(len(batch))))

	g.Backward(loss)
	return loss.ScalarValue()
}

func createInputNodes(batch io.DataBatch, g *ag.Graph) []ag.Node {
	input := make([]ag.Node, len(batch))
	for i := range input {
		input[i] = g.NewVariable(batch[i].Features, false)
	}
	return input
}
