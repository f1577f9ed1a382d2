package render

import (
	"sort"
	"strings"
	"time"

	"github.com/starford/tasklink/internal/models"
)

// DigestOptions configures Digest.
type DigestOptions struct {
	// DateFormat is a Go time layout used for created dates.
	DateFormat    string
	CreatedPrefix string
	BodyPrefix    string
}

// Digest renders remote lists as a Markdown overview: a bold header per list
// followed by one task line per task, open tasks first. Lists without tasks
// are skipped and a created date equal to today is omitted.
func Digest(lists []models.TaskList, opts DigestOptions, now time.Time) string {
	layout := opts.DateFormat
	if layout == "" {
		layout = time.DateOnly
	}
	today := now.Format(layout)

	var segments []string
	for _, list := range lists {
		if len(list.Tasks) == 0 {
			continue
		}
		tasks := append([]models.RemoteTask(nil), list.Tasks...)
		sort.SliceStable(tasks, func(i, j int) bool {
			return tasks[i].Status != models.StatusCompleted && tasks[j].Status == models.StatusCompleted
		})

		var b strings.Builder
		b.WriteString("**" + list.DisplayName + "**\n")
		for _, task := range tasks {
			b.WriteString(digestLine(task, opts, layout, today))
			b.WriteString("\n")
		}
		segments = append(segments, b.String())
	}
	return strings.Join(segments, "\n\n")
}

func digestLine(task models.RemoteTask, opts DigestOptions, layout, today string) string {
	done := " "
	if task.Status == models.StatusCompleted {
		done = "x"
	}

	created := ""
	if ts, err := time.Parse(time.RFC3339Nano, task.CreatedDateTime); err == nil {
		if d := ts.Local().Format(layout); d != today {
			created = opts.CreatedPrefix + "[[" + d + "]]"
		}
	}

	body := ""
	if task.Body != nil && task.Body.Content != "" {
		body = opts.BodyPrefix + strings.Join(strings.Fields(task.Body.Content), " ")
	}

	return strings.TrimRight("- ["+done+"] "+task.Title+"  "+created+"  "+body, " ")
}
