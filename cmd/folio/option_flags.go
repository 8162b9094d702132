package main

import (
	"github.com/spf13/cobra"

	"folio/internal/job"
)

// optionFlags binds the engine tuning flags shared by submit and batch.
type optionFlags struct {
	model       string
	prompt      string
	temperature float64
	resize      int
	contrast    float64
	binarize    bool
	invert      bool
}

func (f *optionFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.model, "model", "", "Transcription model override")
	flags.StringVar(&f.prompt, "prompt", "", "Extra prompt passed to the engine")
	flags.Float64Var(&f.temperature, "temp", 0, "Sampling temperature")
	flags.IntVar(&f.resize, "resize", 0, "Resize input to this width in pixels")
	flags.Float64Var(&f.contrast, "contrast", 0, "Contrast adjustment factor")
	flags.BoolVar(&f.binarize, "binarize", false, "Binarize input before transcription")
	flags.BoolVar(&f.invert, "invert", false, "Invert input colors before transcription")
}

// options converts the flag values into job options. Numeric tuning flags
// are only forwarded when set explicitly, so the engine keeps its own
// defaults otherwise.
func (f *optionFlags) options(cmd *cobra.Command) job.Options {
	opts := job.Options{
		Model:    f.model,
		Prompt:   f.prompt,
		Resize:   f.resize,
		Binarize: f.binarize,
		Invert:   f.invert,
	}
	if cmd.Flags().Changed("temp") {
		temp := f.temperature
		opts.Temperature = &temp
	}
	if cmd.Flags().Changed("contrast") {
		contrast := f.contrast
		opts.Contrast = &contrast
	}
	return opts
}
