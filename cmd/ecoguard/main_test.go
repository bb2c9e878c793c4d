package main

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePhoto(t *testing.T, dir string, seed uint64) string {
	t.Helper()
	rng := rand.New(rand.NewPCG(seed, seed+1))
	img := image.NewNRGBA(image.Rect(0, 0, 640, 480))
	for by := 0; by < 480; by += 16 {
		for bx := 0; bx < 640; bx += 16 {
			c := color.NRGBA{R: uint8(rng.IntN(256)), G: uint8(rng.IntN(256)), B: uint8(rng.IntN(256)), A: 255}
			for y := by; y < by+16; y++ {
				for x := bx; x < bx+16; x++ {
					img.SetNRGBA(x, y, c)
				}
			}
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	path := filepath.Join(dir, "photo.png")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
	return path
}

// run executes the CLI with args against an isolated config search path.
func run(t *testing.T, args ...string) []byte {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute(), "ecoguard %v", args)
	return out.Bytes()
}

func TestCLI_ScreenRecordAndStatus(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)

	photo := writePhoto(t, dir, 1)
	db := filepath.Join(dir, "ecoguard.db")

	var fps []fingerprintOutput
	require.NoError(t, json.Unmarshal(run(t, "fingerprint", photo, "--db", db), &fps))
	require.Len(t, fps, 1)
	assert.False(t, fps[0].Sentinel)
	assert.Len(t, fps[0].Fingerprint.PerceptualHash, 16)

	var first struct {
		Screening struct {
			Decision string `json:"decision"`
		} `json:"screening"`
		SubmissionID string `json:"submissionId"`
	}
	require.NoError(t, json.Unmarshal(run(t, "screen", photo, "--user", "u1", "--record", "--db", db, "--log-level", "error"), &first))
	assert.Equal(t, "accept", first.Screening.Decision)
	assert.NotEmpty(t, first.SubmissionID)

	var second struct {
		Screening struct {
			Decision string `json:"decision"`
		} `json:"screening"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(run(t, "screen", photo, "--user", "u1", "--db", db), &second))
	assert.Equal(t, "throttled", second.Screening.Decision, "immediate resubmission hits the cooldown")
	assert.Contains(t, second.Message, "Please wait")

	var status struct {
		TotalSubmissions int    `json:"totalSubmissions"`
		Reputation       string `json:"reputation"`
	}
	require.NoError(t, json.Unmarshal(run(t, "user", "u1", "--db", db), &status))
	assert.Equal(t, 1, status.TotalSubmissions)
	assert.Equal(t, "good", status.Reputation)
}

func TestCLI_ScreenRequiresUser(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)

	cmd := newRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"screen", writePhoto(t, dir, 2), "--db", filepath.Join(dir, "x.db")})
	require.ErrorContains(t, cmd.Execute(), "--user is required")
}
