// Package prompt fills missing task values interactively. In non-interactive
// mode every question resolves to its default; tests inject a scripted
// response list. The real prompter uses readline and treats EOF/interrupt as
// "accept the default".
package prompt

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/csmcal/wf2wf/pkg/ir"
)

// Interface is the single prompting abstraction orchestrators consult.
type Interface interface {
	// PromptForMissingValues iterates tasks and asks only for fields that
	// are unset for the target environment. phase is "import" or "export".
	PromptForMissingValues(w *ir.Workflow, phase, env string) error
}

// answerer produces one answer per question; implementations differ in where
// answers come from.
type answerer interface {
	ask(q question) (string, error)
}

type question struct {
	field   string
	text    string
	kind    string // "int", "string", "choice"
	def     string
	choices []string
	// optional questions accept an empty answer and leave the field unset
	optional bool
	min      int64
}

// taskQuestions is the fixed question order. GPU is not prompted: a task
// that never mentioned GPUs gets an explicit gpu=0 default instead.
var taskQuestions = []question{
	{field: "cpu", text: "CPU cores", kind: "int", def: "1", min: 1},
	{field: "mem_mb", text: "Memory (MB)", kind: "int", def: "4096", min: 1},
	{field: "disk_mb", text: "Disk space (MB)", kind: "int", def: "4096", min: 0},
	{field: "threads", text: "Threads", kind: "int", def: "1", min: 1},
	{field: "time_s", text: "Runtime limit (seconds)", kind: "int", def: "3600", min: 1},
	{field: "retry_count", text: "Retry count", kind: "int", def: "0", min: 0},
	{field: "retry_delay", text: "Retry delay (seconds)", kind: "int", def: "0", min: 0},
	{field: "__env_kind", text: "Execution environment kind", kind: "choice", def: "none", choices: []string{"container", "conda", "none"}},
	{field: "__env_ref", text: "Environment reference", kind: "string", def: ""},
	{field: "workdir", text: "Working directory", kind: "string", def: "", optional: true},
	{field: "priority", text: "Priority", kind: "int", def: "0", min: -1000},
	{field: "command", text: "Command", kind: "string", def: "", optional: true},
	{field: "script", text: "Script path", kind: "string", def: "", optional: true},
	{field: "env_vars", text: "Environment variables (K=V,...)", kind: "string", def: "", optional: true},
	{field: "__notes", text: "Notes", kind: "string", def: "", optional: true},
}

// Get returns the prompter appropriate for the current invocation:
// the readline prompter when interactive is requested and prompting is not
// disabled via WF2WF_NO_PROMPT, otherwise the non-interactive one.
func Get(interactive bool) Interface {
	if !interactive || os.Getenv("WF2WF_NO_PROMPT") == "1" {
		return NonInteractive{}
	}
	return &Readline{}
}

// NonInteractive answers every question with its default.
type NonInteractive struct{}

func (NonInteractive) PromptForMissingValues(w *ir.Workflow, phase, env string) error {
	return run(w, env, defaultAnswerer{})
}

type defaultAnswerer struct{}

func (defaultAnswerer) ask(q question) (string, error) { return q.def, nil }

// Scripted consumes an injected response list in order; once exhausted it
// falls back to defaults. Used by tests.
type Scripted struct {
	Responses []string
	next      int
}

func (s *Scripted) ask(q question) (string, error) {
	if s.next >= len(s.Responses) {
		return q.def, nil
	}
	r := s.Responses[s.next]
	s.next++
	if strings.TrimSpace(r) == "" {
		return q.def, nil
	}
	return r, nil
}

func (s *Scripted) PromptForMissingValues(w *ir.Workflow, phase, env string) error {
	return run(w, env, s)
}

// Readline asks on the terminal. EOF or interrupt falls back to the default.
type Readline struct{}

func (r *Readline) PromptForMissingValues(w *ir.Workflow, phase, env string) error {
	rl, err := readline.New("")
	if err != nil {
		return fmt.Errorf("init readline: %w", err)
	}
	defer rl.Close()
	return run(w, env, &readlineAnswerer{rl: rl})
}

type readlineAnswerer struct {
	rl *readline.Instance
}

func (a *readlineAnswerer) ask(q question) (string, error) {
	promptText := q.text
	if len(q.choices) > 0 {
		promptText += " (" + strings.Join(q.choices, "/") + ")"
	}
	if q.def != "" {
		promptText += " [" + q.def + "]"
	}
	a.rl.SetPrompt(promptText + ": ")
	line, err := a.rl.Readline()
	if err == readline.ErrInterrupt || err == io.EOF {
		return q.def, nil
	}
	if err != nil {
		return "", err
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return q.def, nil
	}
	return line, nil
}

// run walks tasks in deterministic order and applies answers.
func run(w *ir.Workflow, env string, a answerer) error {
	if env == "" {
		env = ir.EnvSharedFilesystem
	}
	order, err := ir.TopoSort(w)
	if err != nil {
		order = w.TaskIDs()
	}
	for _, id := range order {
		if err := promptTask(w.Tasks[id], env, a); err != nil {
			return fmt.Errorf("task %s: %w", id, err)
		}
	}
	return nil
}

func promptTask(task *ir.Task, env string, a answerer) error {
	envKind := ""
	for _, q := range taskQuestions {
		switch q.field {
		case "__env_kind":
			if task.Container.IsSetFor(env) || task.Conda.IsSetFor(env) {
				continue
			}
			ans, err := askValidated(a, q)
			if err != nil {
				return err
			}
			envKind = ans
		case "__env_ref":
			if envKind == "" || envKind == "none" {
				continue
			}
			ans, err := askValidated(a, q)
			if err != nil {
				return err
			}
			if ans == "" {
				continue
			}
			if envKind == "container" {
				task.Container.Set(ans, env)
			} else {
				task.Conda.Set(ans, env)
			}
		case "__notes":
			ans, err := askValidated(a, q)
			if err != nil {
				return err
			}
			if ans != "" {
				task.Meta().AddNote(ans)
			}
		default:
			ev := task.EnvField(q.field)
			if ev.IsSetFor(env) {
				continue
			}
			ans, err := askValidated(a, q)
			if err != nil {
				return err
			}
			if ans == "" {
				continue
			}
			switch q.kind {
			case "int":
				n, _ := strconv.ParseInt(ans, 10, 64)
				ev.Set(n, env)
			default:
				if q.field == "env_vars" {
					ev.Set(parseEnvVars(ans), env)
				} else {
					ev.Set(ans, env)
				}
			}
		}
	}
	if !task.GPU.IsSetFor(env) {
		task.GPU.SetWithMethod(int64(0), env, ir.SourceDefault, 1.0)
	}
	return nil
}

// askValidated re-asks (or falls back to the default) until the answer
// passes the question's validation.
func askValidated(a answerer, q question) (string, error) {
	for attempt := 0; ; attempt++ {
		ans, err := a.ask(q)
		if err != nil {
			return "", err
		}
		ans = strings.TrimSpace(ans)
		if ans == "" {
			if q.optional || q.def == "" {
				return "", nil
			}
			ans = q.def
		}
		if ok := validate(q, ans); ok {
			return ans, nil
		}
		fmt.Fprintf(os.Stderr, "Invalid value %q for %s\n", ans, q.text)
		if attempt >= 2 {
			return q.def, nil
		}
	}
}

func validate(q question, ans string) bool {
	switch q.kind {
	case "int":
		n, err := strconv.ParseInt(ans, 10, 64)
		if err != nil {
			return false
		}
		return n >= q.min
	case "choice":
		for _, c := range q.choices {
			if ans == c {
				return true
			}
		}
		return false
	}
	return true
}

func parseEnvVars(s string) map[string]any {
	out := map[string]any{}
	for _, pair := range strings.Split(s, ",") {
		kv := strings.SplitN(strings.TrimSpace(pair), "=", 2)
		if len(kv) == 2 && kv[0] != "" {
			out[kv[0]] = kv[1]
		}
	}
	return out
}
