package subscript

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Command describes one transcription engine invocation. The engine takes the
// segmentation and transcription model names as positionals, then the input
// images, with behaviour flags after them.
type Command struct {
	SegmentationModel  string
	TranscriptionModel string
	Inputs             []string
	OutputDir          string

	// Combine merges all inputs into one named result instead of producing
	// per-input artifacts.
	Combine string
	// OnlyPDF regenerates the PDF from existing markup without re-running
	// the transcription models.
	OnlyPDF bool

	Prompt      string
	Temperature *float64

	// Image pre-processing knobs, applied in the engine before segmentation.
	Resize   int
	Contrast *float64
	Binarize bool
	Invert   bool
}

// Validate checks the invocation is well formed before spawning a process.
func (c Command) Validate() error {
	if strings.TrimSpace(c.SegmentationModel) == "" {
		return errors.New("segmentation model required")
	}
	if strings.TrimSpace(c.TranscriptionModel) == "" {
		return errors.New("transcription model required")
	}
	if len(c.Inputs) == 0 {
		return errors.New("at least one input required")
	}
	for i, input := range c.Inputs {
		if strings.TrimSpace(input) == "" {
			return fmt.Errorf("input %d is empty", i+1)
		}
	}
	if strings.TrimSpace(c.OutputDir) == "" {
		return errors.New("output directory required")
	}
	return nil
}

// Args renders the argument vector for the engine binary.
func (c Command) Args() []string {
	args := make([]string, 0, len(c.Inputs)+16)
	args = append(args, c.SegmentationModel, c.TranscriptionModel)
	args = append(args, c.Inputs...)
	args = append(args, "--output", c.OutputDir)
	if c.Combine != "" {
		args = append(args, "--combine", c.Combine)
	}
	if c.OnlyPDF {
		args = append(args, "--onlypdf")
	}
	if c.Prompt != "" {
		args = append(args, "--prompt", c.Prompt)
	}
	if c.Temperature != nil {
		args = append(args, "--temp", strconv.FormatFloat(*c.Temperature, 'f', -1, 64))
	}
	if c.Resize > 0 {
		args = append(args, "--resize", strconv.Itoa(c.Resize))
	}
	if c.Contrast != nil {
		args = append(args, "--contrast", strconv.FormatFloat(*c.Contrast, 'f', -1, 64))
	}
	if c.Binarize {
		args = append(args, "--binarize")
	}
	if c.Invert {
		args = append(args, "--invert")
	}
	return args
}
