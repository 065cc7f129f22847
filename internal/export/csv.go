package export

import (
	"io"

	"github.com/san-kum/lqrsim/internal/sim"
	"github.com/san-kum/lqrsim/internal/storage"
)

// WriteCSV writes the trajectory resampled at hz frames per second, or the
// raw accepted steps when hz is zero.
func WriteCSV(w io.Writer, result *sim.Result, hz float64) error {
	samples := result.Samples
	if hz > 0 && len(samples) > 0 {
		var err error
		samples, err = sim.Resample(samples, samples[0].T, 1/hz, result.Final().T)
		if err != nil {
			return err
		}
	}
	return storage.WriteCSV(w, samples)
}
