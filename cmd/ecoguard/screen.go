package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/anatolykoptev/go-ecoguard"
	"github.com/anatolykoptev/go-ecoguard/store"
)

type screenOutput struct {
	Screening    *ecoguard.Screening `json:"screening"`
	Message      string              `json:"message,omitempty"`
	SubmissionID string              `json:"submissionId,omitempty"`
}

func screenCommand(a *app) *cobra.Command {
	var (
		userID  string
		device  string
		signals ecoguard.DeviceSignals
		record  bool
	)

	cmd := &cobra.Command{
		Use:   "screen FILE",
		Short: "Run the submission checks for one photo against the stored history",
		Long: `Run cooldown, hourly limit and duplicate checks for one photo.

Without --device, the device fingerprint is derived from the --user-agent,
--accept-language and --ip signals when any of them is given.

Examples:
  ecoguard screen photo.jpg --user 42
  ecoguard screen photo.jpg --user 42 --user-agent "Mozilla/5.0" --ip 10.0.0.7 --record`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return errors.New("--user is required")
			}
			if device == "" && signals != (ecoguard.DeviceSignals{}) {
				device = ecoguard.DeviceFingerprintOf(signals)
			}

			data, err := readImage(args[0])
			if err != nil {
				return err
			}

			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			cfg := a.core(st)
			res, err := cfg.Screen(cmd.Context(), ecoguard.SubmissionInput{
				UserID:            userID,
				DeviceFingerprint: device,
				Image:             data,
			})
			if err != nil {
				return err
			}

			out := screenOutput{Screening: res, Message: res.UserMessage()}
			if record && res.Decision != ecoguard.DecisionThrottled {
				sub := store.NewSubmission(userID, device, res.Fingerprint, res.Verdict, cfg.Now())
				if len(res.ReviewReasons) > 0 && !sub.Flagged {
					sub.Flagged, sub.FlagReason, sub.Status = true, res.ReviewReasons[0], store.ReviewPending
				}
				if err := st.RecordSubmission(cmd.Context(), sub); err != nil {
					return err
				}
				out.SubmissionID = sub.ID
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}

	f := cmd.Flags()
	f.StringVar(&userID, "user", "", "submitting user id")
	f.StringVar(&device, "device", "", "precomputed device fingerprint")
	f.StringVar(&signals.UserAgent, "user-agent", "", "client User-Agent header")
	f.StringVar(&signals.AcceptLanguage, "accept-language", "", "client Accept-Language header")
	f.StringVar(&signals.IP, "ip", "", "client IP address")
	f.BoolVar(&record, "record", false, "store the submission when it is not throttled")
	return cmd
}

func userCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "user USER_ID",
		Short: "Show a submitter's counts, limits and reputation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			status, err := a.core(st).UserStatus(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), status)
		},
	}
}
