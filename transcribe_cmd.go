package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"node.town/wisp/capture"
	"node.town/wisp/refine"
	"node.town/wisp/session"
)

var transcribeCmd = &cobra.Command{
	Use:   "transcribe <file.wav>",
	Short: "Send a WAV file through the recorder and print the transcript",
	Args:  cobra.ExactArgs(1),
	RunE:  runTranscribe,
}

func runTranscribe(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}

	realtime, _ := cmd.Flags().GetBool("realtime")
	copyOut, _ := cmd.Flags().GetBool("copy")
	raw, _ := cmd.Flags().GetBool("raw")

	logger := createLogger(os.Stderr, settings.Level())

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	device := capture.NewWAVDevice(args[0], realtime, logger.WithPrefix("wav"))
	sess := newSession(settings, device, logger)
	defer sess.Close()

	text, err := transcribeOnce(ctx, sess, logger)
	if err != nil {
		return err
	}

	if !raw {
		if refiner := newRefiner(ctx, settings, logger); refiner != nil {
			defer refiner.Close()
			text = refineTranscript(ctx, refiner, text, logger)
		}
	}

	fmt.Println(text)

	if copyOut {
		if err := clipboard.WriteAll(text); err != nil {
			return fmt.Errorf("failed to copy transcript: %w", err)
		}
		logger.Info("copied transcript to clipboard")
	}
	return nil
}

// refineTranscript returns the refined text, or text itself when
// refinement fails.
func refineTranscript(ctx context.Context, r *refine.Refiner, text string, logger *log.Logger) string {
	res, err := r.Refine(ctx, text)
	if err != nil {
		logger.Warn("using raw transcript", "error", err)
		return text
	}
	return res.Text
}

// transcribeOnce records until the device runs dry and waits for the
// session to settle back to idle.
func transcribeOnce(ctx context.Context, sess *session.Session, logger *log.Logger) (string, error) {
	if err := sess.Start(ctx); err != nil {
		return "", err
	}

	gen := sess.Snapshot().Generation
	updates := sess.Updates()
	for {
		select {
		case <-ctx.Done():
			sess.Cancel()
			return "", ctx.Err()

		case snap, ok := <-updates:
			if !ok {
				return "", session.ErrClosed
			}
			if snap.Generation != gen {
				continue
			}

			switch snap.State {
			case session.Recording:
				logger.Debug("recording", "chunks", snap.Chunks, "bytes", snap.Bytes)
			case session.Processing:
				logger.Info("waiting for transcript", "chunks", snap.Chunks, "bytes", snap.Bytes)
			case session.Idle:
				if snap.Err != nil {
					return "", snap.Err
				}
				return snap.Transcript, nil
			}
		}
	}
}
