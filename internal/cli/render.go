package cli

import (
	"fmt"

	"github.com/fatih/color"

	"github.com/roach88/todosync/internal/doc"
	"github.com/roach88/todosync/internal/replicate"
)

// TaskView is the JSON shape of a task.
type TaskView struct {
	ID        string `json:"id"`
	Rev       string `json:"rev"`
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
	Deleted   bool   `json:"deleted,omitempty"`
	Seq       int64  `json:"seq"`
}

func newTaskView(rec doc.Record) TaskView {
	return TaskView{
		ID:        rec.ID,
		Rev:       rec.Rev.String(),
		Title:     rec.Title,
		Completed: rec.Completed,
		Deleted:   rec.Deleted,
		Seq:       rec.Seq,
	}
}

// palette holds the text-mode color functions.
type palette struct {
	done    func(a ...interface{}) string
	id      func(a ...interface{}) string
	deleted func(a ...interface{}) string
	state   map[replicate.State]func(a ...interface{}) string
}

func (f *OutputFormatter) palette() palette {
	mk := func(attrs ...color.Attribute) func(a ...interface{}) string {
		c := color.New(attrs...)
		if f.NoColor {
			c.DisableColor()
		}
		return c.SprintFunc()
	}
	return palette{
		done:    mk(color.FgGreen),
		id:      mk(color.Faint),
		deleted: mk(color.FgRed),
		state: map[replicate.State]func(a ...interface{}) string{
			replicate.StateConnecting: mk(color.FgYellow),
			replicate.StateActive:     mk(color.FgGreen),
			replicate.StatePaused:     mk(color.FgCyan),
			replicate.StateError:      mk(color.FgRed),
			replicate.StateDenied:     mk(color.FgMagenta),
			replicate.StateStopped:    mk(color.Bold),
		},
	}
}

func (p palette) taskLine(rec doc.Record) string {
	box := "[ ]"
	if rec.Completed {
		box = p.done("[x]")
	}
	line := fmt.Sprintf("%s %s  %s", box, p.id(rec.ID), rec.Title)
	if rec.Deleted {
		line += " " + p.deleted("(deleted)")
	}
	return line
}

// Task outputs one task.
func (f *OutputFormatter) Task(rec doc.Record) error {
	if f.Format == "json" {
		return f.Success(newTaskView(rec))
	}
	fmt.Fprintln(f.Writer, f.palette().taskLine(rec))
	return nil
}

// Tasks outputs a task list.
func (f *OutputFormatter) Tasks(recs []doc.Record) error {
	if f.Format == "json" {
		views := make([]TaskView, len(recs))
		for i, rec := range recs {
			views[i] = newTaskView(rec)
		}
		return f.Success(views)
	}

	if len(recs) == 0 {
		fmt.Fprintln(f.Writer, "no tasks")
		return nil
	}
	p := f.palette()
	for _, rec := range recs {
		fmt.Fprintln(f.Writer, p.taskLine(rec))
	}
	return nil
}

// Revisions outputs alternate revisions of a task.
func (f *OutputFormatter) Revisions(recs []doc.Record) error {
	if f.Format == "json" {
		return f.Tasks(recs)
	}
	if len(recs) == 0 {
		fmt.Fprintln(f.Writer, "no conflicts")
		return nil
	}
	p := f.palette()
	for _, rec := range recs {
		fmt.Fprintf(f.Writer, "%s  %s\n", rec.Rev, p.taskLine(rec))
	}
	return nil
}

// ChangeView is the JSON shape of a change-feed event.
type ChangeView struct {
	Seq     int64  `json:"seq"`
	ID      string `json:"id"`
	Rev     string `json:"rev"`
	Deleted bool   `json:"deleted,omitempty"`
}

// Change outputs one change-feed event.
func (f *OutputFormatter) Change(ev doc.Event) error {
	if f.Format == "json" {
		return f.Success(ChangeView{Seq: ev.Seq, ID: ev.ID, Rev: ev.Rev.String(), Deleted: ev.Deleted})
	}
	p := f.palette()
	line := fmt.Sprintf("%d %s %s", ev.Seq, p.id(ev.ID), ev.Rev)
	if ev.Deleted {
		line += " " + p.deleted("deleted")
	}
	fmt.Fprintln(f.Writer, line)
	return nil
}

// SyncView is the JSON shape of a replication event.
type SyncView struct {
	State  replicate.State `json:"state"`
	DocID  string          `json:"doc_id,omitempty"`
	Pulled int             `json:"pulled,omitempty"`
	Pushed int             `json:"pushed,omitempty"`
	Delay  string          `json:"retry_in,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// SyncEvent outputs one replication event.
func (f *OutputFormatter) SyncEvent(ev replicate.Event) error {
	if f.Format == "json" {
		v := SyncView{State: ev.State, DocID: ev.DocID, Pulled: ev.Pulled, Pushed: ev.Pushed}
		if ev.Delay > 0 {
			v.Delay = ev.Delay.String()
		}
		if ev.Err != nil {
			v.Error = ev.Err.Error()
		}
		return f.Success(v)
	}

	text := ev.String()
	if paint, ok := f.palette().state[ev.State]; ok {
		text = paint(text)
	}
	fmt.Fprintf(f.Writer, "sync: %s\n", text)
	return nil
}
