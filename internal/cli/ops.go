package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chanwatch/chanwatch/internal/config"
	"github.com/chanwatch/chanwatch/internal/console"
	"github.com/chanwatch/chanwatch/internal/duration"
	"github.com/chanwatch/chanwatch/internal/report"
	"github.com/chanwatch/chanwatch/internal/store"
)

// reportParams holds the tunables a console client may change while the
// observer runs. Report generation reads them under the same lock.
type reportParams struct {
	mu       sync.Mutex
	cfg      config.Config
	interval time.Duration
	minUsers int
}

// registerOperations wires the remote console to the store.
func registerOperations(con *console.Console, st *store.Store, params *reportParams) {
	con.Register("config", "show", "", "prints the active configuration", func(string) (string, error) {
		return opConfigShow(params)
	})
	con.Register("config", "get", "<key>", "prints one configuration value", func(arg string) (string, error) {
		return opConfigGet(params, arg)
	})
	con.Register("config", "set", "<key> <value>", "changes a report tunable", func(arg string) (string, error) {
		return opConfigSet(params, arg)
	})
	con.Register("db", "save", "", "saves the database to disk", func(string) (string, error) {
		if err := st.Save(); err != nil {
			return "", err
		}
		return fmt.Sprintf("saved %d entries", st.Len()), nil
	})
	con.Register("db", "load", "", "reloads the database from disk", func(string) (string, error) {
		if err := st.Load(); err != nil {
			return "", err
		}
		return fmt.Sprintf("loaded %d entries", st.Len()), nil
	})
	con.Register("db", "compact", "", "drops tombstones and rebuilds the caches", func(string) (string, error) {
		before := st.Len()
		st.Compact()
		return fmt.Sprintf("compacted %d entries into %d events", before, st.Len()), nil
	})
	con.Register("db", "dump", "", "prints the database as JSON", func(string) (string, error) {
		data, err := st.Dump()
		if err != nil {
			return "", err
		}
		return string(data), nil
	})
	con.Register("report", "generate", "<channel>", "writes the channel's meeting report to an HTML file", func(arg string) (string, error) {
		return opReportGenerate(st, params, arg)
	})
}

func opConfigShow(params *reportParams) (string, error) {
	params.mu.Lock()
	cfg := params.cfg
	params.mu.Unlock()

	if cfg.Token != "" {
		cfg.Token = "<redacted>"
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(data), "\n"), nil
}

func opConfigGet(params *reportParams, arg string) (string, error) {
	params.mu.Lock()
	cfg := params.cfg
	params.mu.Unlock()

	key := strings.TrimSpace(arg)
	switch key {
	case "token":
		if cfg.Token == "" {
			return "", nil
		}
		return "<redacted>", nil
	case "database":
		return cfg.Database, nil
	case "autosave":
		return cfg.Autosave, nil
	case "console_host":
		return cfg.ConsoleHost, nil
	case "console_port":
		return strconv.Itoa(cfg.ConsolePort), nil
	case "console_hello":
		return cfg.ConsoleHello, nil
	case "console_timeout":
		return cfg.ConsoleTimeout, nil
	case "meeting_interval":
		return cfg.MeetingInterval, nil
	case "meeting_userc":
		return strconv.Itoa(cfg.MeetingUserc), nil
	case "comment_cooldown":
		return cfg.CommentCooldown, nil
	}
	return "", fmt.Errorf("unknown key %q", key)
}

func opConfigSet(params *reportParams, arg string) (string, error) {
	key, value, ok := strings.Cut(arg, " ")
	if !ok {
		return "", fmt.Errorf("expected <key> <value>")
	}
	value = strings.TrimSpace(value)

	params.mu.Lock()
	defer params.mu.Unlock()
	switch key {
	case "meeting_interval":
		interval, err := duration.Parse(value)
		if err != nil {
			return "", err
		}
		params.interval = interval
		params.cfg.MeetingInterval = value
	case "meeting_userc":
		userc, err := strconv.Atoi(value)
		if err != nil || userc < 1 {
			return "", fmt.Errorf("meeting_userc must be a positive integer")
		}
		params.minUsers = userc
		params.cfg.MeetingUserc = userc
	default:
		return "", fmt.Errorf("unknown or read-only key %q", key)
	}
	return fmt.Sprintf("%s = %s", key, value), nil
}

func opReportGenerate(st *store.Store, params *reportParams, arg string) (string, error) {
	channel, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid channel id %q", arg)
	}

	params.mu.Lock()
	interval, minUsers := params.interval, params.minUsers
	params.mu.Unlock()

	rec := report.NewReconstructor(st, interval, minUsers)
	html := report.NewRenderer(st, rec).Render(channel)

	name := fmt.Sprintf("report-%d.html", channel)
	if err := os.WriteFile(name, html, 0o644); err != nil {
		return "", err
	}
	return fmt.Sprintf("wrote %s (%d bytes)", name, len(html)), nil
}
