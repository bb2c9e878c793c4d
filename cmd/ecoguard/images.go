package main

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/anatolykoptev/go-ecoguard"
)

// readImage loads an image file. Files holding a base64 data URL, as the
// mobile client uploads them, are decoded transparently.
func readImage(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if trimmed := bytes.TrimSpace(data); bytes.HasPrefix(trimmed, []byte("data:")) {
		decoded, _, err := ecoguard.DecodeDataURL(string(trimmed))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return decoded, nil
	}
	return data, nil
}

type fingerprintOutput struct {
	File        string               `json:"file"`
	Fingerprint ecoguard.Fingerprint `json:"fingerprint"`
	Sentinel    bool                 `json:"sentinel,omitempty"`
	EditedWith  string               `json:"editedWith,omitempty"`
}

func fingerprintCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "fingerprint FILE...",
		Short: "Print the perceptual fingerprint of each image",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.core(nil)
			out := make([]fingerprintOutput, 0, len(args))
			for _, path := range args {
				data, err := readImage(path)
				if err != nil {
					return err
				}
				fp := cfg.Fingerprint(cmd.Context(), data)
				out = append(out, fingerprintOutput{
					File:        path,
					Fingerprint: fp,
					Sentinel:    fp.IsSentinel(),
					EditedWith:  ecoguard.EditedBySoftware(fp.Capture),
				})
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
}

type compareOutput struct {
	PrimaryDistance   int              `json:"primaryDistance"`
	SecondaryDistance int              `json:"secondaryDistance"`
	FrequencyDistance int              `json:"frequencyDistance"`
	Correlation       float64          `json:"histogramCorrelation"`
	HistogramDistance float64          `json:"histogramDistance"`
	SameUser          ecoguard.Verdict `json:"sameUser"`
	CrossUser         ecoguard.Verdict `json:"crossUser"`
}

func compareCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "compare A B",
		Short: "Compare two images and show how the detector would classify B against A",
		Args:  cobra.ExactArgs(2), //nolint:mnd // two images
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.core(nil)
			det, err := ecoguard.NewDetector(cfg.Detector)
			if err != nil {
				return err
			}

			var fps [2]ecoguard.Fingerprint
			for i, path := range args {
				data, err := readImage(path)
				if err != nil {
					return err
				}
				fps[i] = cfg.Fingerprint(cmd.Context(), data)
			}
			first, second := fps[0], fps[1]

			cand := ecoguard.Candidate{
				ID:             args[0],
				UserID:         "owner",
				PerceptualHash: first.PerceptualHash,
				SecondaryHash:  first.SecondaryHash,
				FrequencyHash:  first.FrequencyHash,
				ColorHistogram: first.ColorHistogram,
				Quality:        first.Quality,
			}
			pool := []ecoguard.Candidate{cand}

			return writeJSON(cmd.OutOrStdout(), compareOutput{
				PrimaryDistance:   ecoguard.Distance(first.PerceptualHash, second.PerceptualHash),
				SecondaryDistance: ecoguard.Distance(first.SecondaryHash, second.SecondaryHash),
				FrequencyDistance: ecoguard.Distance(first.FrequencyHash, second.FrequencyHash),
				Correlation:       ecoguard.HistogramCorrelation(first.ColorHistogram, second.ColorHistogram),
				HistogramDistance: ecoguard.HistogramDistance(first.ColorHistogram, second.ColorHistogram),
				SameUser:          det.Check(second, "owner", pool),
				CrossUser:         det.Check(second, "someone-else", pool),
			})
		},
	}
}
