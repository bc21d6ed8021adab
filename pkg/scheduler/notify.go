package scheduler

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// notifyStart announces the run in a fresh top-level message whose ts
// pins the chat thread for everything that follows. Init failures are
// reported right below it.
func (s *Scheduler) notifyStart(ctx context.Context) {
	msg := "*PIPELINE JOB STARTED*\n"
	msg += fmt.Sprintf("> ⌛  Slurm %s job is being scheduled...\n", s.job.Name)
	msg += fmt.Sprintf("> 🌎  Scheduled param_file: %s.\n", strings.Join(s.paramFileNames(), ", "))
	s.send(ctx, msg, false)

	if s.nInitFailed > 0 {
		msg := fmt.Sprintf("🚨  %d of %d work packages could not be initialized and are marked as failed.", s.nInitFailed, s.nTotal)
		s.send(ctx, msg, true)
	}
}

// notifyStatus posts a progress snapshot, throttled to every Nth poll.
// The first snapshot goes into the run thread; later ones update that
// same message in place.
func (s *Scheduler) notifyStatus(ctx context.Context) {
	if !s.everyNPolls(statusNotifyPolls) {
		return
	}

	msg := fmt.Sprintf("*Status update after %s*\n", strfDuration(s.duration()))
	msg += fmt.Sprintf("> TOTAL: %d\n", s.nTotal)
	msg += fmt.Sprintf("> PENDING: %d\n", len(s.pendingWork()))
	msg += fmt.Sprintf("> SUCCEEDED: %d\n", len(s.succeededWork()))
	msg += fmt.Sprintf("> FAILED: %d\n", len(s.failedWork()))
	for _, cause := range s.failureCauses() {
		msg += fmt.Sprintf(">   > slurm %s: %d\n", strings.ToLower(cause.status), cause.count)
	}

	if s.statusTS != "" {
		if err := s.notifier.Update(ctx, msg, s.statusChannel, s.statusTS); err != nil {
			s.logger.Error().Msgf("Failed to update Slack status message: %v", err)
		}
		return
	}

	s.statusTS, s.statusChannel = s.send(ctx, msg, true)
}

// notifyDone posts the final summary as a top-level message.
func (s *Scheduler) notifyDone(ctx context.Context) {
	msg := "*PIPELINE JOB FINISHED*\n"
	msg += fmt.Sprintf("> 🏁  Slurm %s job finished after %s hours.\n", s.job.Name, strfDuration(s.duration()))
	msg += fmt.Sprintf("> 🌎  Processed param_file: %s.\n", strings.Join(s.paramFileNames(), ", "))
	msg += fmt.Sprintf("> 🎉  %d of %d work packages succeeded.", len(s.succeededWork()), s.nTotal)
	s.send(ctx, msg, false)
}

// send posts a message to the notifier, in-thread unless it opens a new
// top-level message. The first returned ts pins the run thread. Send
// failures are logged and swallowed; a run never dies because the chat
// sink is down.
func (s *Scheduler) send(ctx context.Context, msg string, threaded bool) (ts, channel string) {
	if s.notifier == nil {
		s.logger.Info().Msgf("No notification hook configured. Cannot send message %s.", msg)
		s.logger.Info().Msg("Consider adding a Slack channel and token to the config.")
		return "", ""
	}

	threadTS := ""
	if threaded {
		threadTS = s.threadTS
	}

	ts, channel, err := s.notifier.Send(ctx, msg, threadTS)
	if err != nil {
		s.logger.Error().Msgf("Failed to send Slack message: %v", err)
		return "", ""
	}

	if s.threadTS == "" {
		s.threadTS = ts
	}
	return ts, channel
}

type failureCause struct {
	status string
	count  int
}

// failureCauses counts the observed cluster statuses of failed
// packages, most frequent first.
func (s *Scheduler) failureCauses() []failureCause {
	counts := make(map[string]int)
	for _, p := range s.failedWork() {
		if p.SlurmStatus == "" {
			continue
		}
		counts[string(p.SlurmStatus)]++
	}

	out := make([]failureCause, 0, len(counts))
	for status, count := range counts {
		out = append(out, failureCause{status: status, count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}
		return out[i].status < out[j].status
	})
	return out
}

func (s *Scheduler) paramFileNames() []string {
	if s.job.ParamGeneratorFile != "" {
		return []string{filepath.Base(s.job.ParamGeneratorFile)}
	}

	names := make([]string, 0, len(s.job.ParamFiles))
	for _, p := range s.job.ParamFiles {
		names = append(names, filepath.Base(p))
	}
	return names
}

// strfDuration renders a duration as [D day(s), ]H:MM:SS for chat
// messages.
func strfDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}

	days := int(d / (24 * time.Hour))
	d -= time.Duration(days) * 24 * time.Hour
	hms := fmt.Sprintf("%d:%02d:%02d", int(d/time.Hour), int(d/time.Minute)%60, int(d/time.Second)%60)

	switch days {
	case 0:
		return hms
	case 1:
		return fmt.Sprintf("1 day, %s", hms)
	default:
		return fmt.Sprintf("%d days, %s", days, hms)
	}
}
