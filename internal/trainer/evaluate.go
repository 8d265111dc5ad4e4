package trainer

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"

	"github.com/born-ml/lrfind/internal/dataset"
)

// Metric names reported by Evaluate.
const (
	MetricLoss     = "loss"
	MetricAccuracy = "accuracy"
)

// Score is one named evaluation result.
type Score struct {
	Name  string
	Value float64
}

// Scores is an ordered list of evaluation results.
type Scores []Score

// Get returns the value of the named metric.
func (s Scores) Get(name string) (float64, bool) {
	for _, score := range s {
		if score.Name == name {
			return score.Value, true
		}
	}
	return 0, false
}

// Evaluate computes the mean loss and accuracy of the model over split,
// weighting every sample equally. Gradient recording is suspended.
func (t *Trainer[B]) Evaluate(ctx context.Context, split *dataset.Split, batchSize int) (Scores, error) {
	if split.Len() == 0 {
		return nil, fmt.Errorf("%w: empty evaluation split", dataset.ErrShape)
	}
	if batchSize <= 0 {
		return nil, fmt.Errorf("trainer: evaluation batch size must be positive, got %d", batchSize)
	}

	tape := t.backend.Tape()
	wasRecording := tape.IsRecording()
	tape.StopRecording()
	defer func() {
		if wasRecording {
			tape.StartRecording()
		}
	}()

	sample := split.SampleSize()
	var totalLoss, totalCorrect float64
	for start := 0; start < split.Len(); start += batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+batchSize, split.Len())
		n := end - start

		images, labels, err := t.batchTensors(
			split.Images[start*sample:end*sample],
			split.Labels[start:end],
			split.Channels, split.Height, split.Width,
		)
		if err != nil {
			return nil, err
		}

		logits := t.model.Forward(images)
		lossRaw := t.backend.CrossEntropy(logits.Raw(), labels.Raw())

		totalLoss += float64(lossRaw.AsFloat32()[0]) * float64(n)
		totalCorrect += float64(nn.Accuracy(logits, labels)) * float64(n)
	}

	count := float64(split.Len())
	return Scores{
		{Name: MetricLoss, Value: totalLoss / count},
		{Name: MetricAccuracy, Value: totalCorrect / count},
	}, nil
}

// Validator estimates held-out loss on random subsets of a split.
type Validator[B tensor.Backend] struct {
	trainer   *Trainer[B]
	split     *dataset.Split
	batchSize int
	rng       *rand.Rand
}

// NewValidator binds a trainer to a held-out split.
func NewValidator[B tensor.Backend](t *Trainer[B], split *dataset.Split, batchSize int, seed uint64) *Validator[B] {
	return &Validator[B]{
		trainer:   t,
		split:     split,
		batchSize: batchSize,
		rng:       rand.New(rand.NewPCG(seed, ^seed)), //nolint:gosec // G404: sampling only
	}
}

// ValidationLoss returns the mean loss over n samples drawn without
// replacement. n is capped at the split size.
func (v *Validator[B]) ValidationLoss(ctx context.Context, n int) (float64, error) {
	if n <= 0 || n > v.split.Len() {
		n = v.split.Len()
	}

	indices := v.rng.Perm(v.split.Len())[:n]

	scores, err := v.trainer.Evaluate(ctx, v.split.Subset(indices), v.batchSize)
	if err != nil {
		return 0, err
	}
	loss, _ := scores.Get(MetricLoss)
	return loss, nil
}
