package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"dbchat-backend/internal/agent"
	"dbchat-backend/internal/chat"
	"dbchat-backend/internal/db"
	"dbchat-backend/internal/resultset"
	"dbchat-backend/internal/session"
)

var (
	askSource   string
	askPath     string
	askEngine   string
	askHost     string
	askPort     int
	askUser     string
	askPassword string
	askDatabase string
	askURL      string
	askModel    string
	askShowSQL  bool
	askNoChart  bool
	askVerbose  bool
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Chat with a database from the terminal",
	Long: `Opens a session and answers questions read from stdin, one per line.
With an argument, answers that single question and exits.

Commands: \history, \stats, \clear, \quit`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, err := askSourceFromFlags()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		app := NewApp(cfg, newLLMClient(cfg))
		features := session.DefaultFeatures()
		features.ShowSQL = askShowSQL
		features.AutoVisualize = !askNoChart

		sess, err := app.Chat.Open(ctx, src, features, askModel)
		if err != nil {
			return err
		}
		defer app.Chat.Sessions().CloseAll()

		r := &repl{chat: app.Chat, sess: sess, out: cmd.OutOrStdout(), verbose: askVerbose}
		if len(args) == 1 {
			return r.ask(ctx, args[0])
		}
		return r.run(ctx, cmd.InOrStdin())
	},
}

func askSourceFromFlags() (db.Source, error) {
	src := db.Source{Kind: db.SourceKind(askSource)}
	switch src.Kind {
	case db.SourceSample:
		src.Path = cfg.SampleDBPath
	case db.SourceUpload:
		src.Path = askPath
	case db.SourceServer:
		src.Engine = db.DatabaseType(askEngine)
		src.Host, src.Port = askHost, askPort
		src.Username, src.Password, src.Database = askUser, askPassword, askDatabase
	case db.SourceURL:
		src.URL = askURL
	default:
		return src, fmt.Errorf("%w: %q", db.ErrUnsupportedSource, askSource)
	}
	return src, db.Validate(src)
}

// repl is the terminal front end of one session
type repl struct {
	chat    *chat.Service
	sess    *session.Session
	out     io.Writer
	verbose bool
}

func (r *repl) run(ctx context.Context, in io.Reader) error {
	fmt.Fprintln(r.out, r.sess.Messages()[0].Content)
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(r.out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(r.out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case `\quit`, `\q`:
			return nil
		case `\history`:
			r.printHistory()
		case `\stats`:
			r.printStats()
		case `\clear`:
			fmt.Fprintln(r.out, r.sess.ClearMessages().Content)
		default:
			if err := r.ask(ctx, line); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				r.printError(err)
			}
		}
	}
}

func (r *repl) ask(ctx context.Context, question string) error {
	var onStep func(agent.Step)
	if r.verbose {
		onStep = func(s agent.Step) {
			fmt.Fprintf(r.out, "  → %s (%s, %dms)\n", s.Tool, s.Status, s.TimeMs)
		}
	}
	resp, err := r.chat.Ask(ctx, r.sess, chat.Request{Mode: chat.ModeQuestion, Question: question}, onStep)
	if err != nil {
		return err
	}

	fmt.Fprintln(r.out, resp.Answer)
	if resp.Table != nil {
		fmt.Fprintln(r.out)
		renderTable(r.out, resp.Table)
	}
	if resp.Chart != nil {
		fmt.Fprintf(r.out, "📊 %s: %s\n", resp.Chart.Kind, resp.Chart.Title)
	}
	if resp.SQL != "" {
		fmt.Fprintf(r.out, "SQL: %s\n", resp.SQL)
	}
	fmt.Fprintf(r.out, "⏱ %.2fs\n", resp.ExecutionTime)
	return nil
}

// printError shows the failure message recorded in the conversation, or err
// itself when the request never reached the agent
func (r *repl) printError(err error) {
	if errors.Is(err, chat.ErrAgentFailed) {
		msgs := r.sess.Messages()
		fmt.Fprintln(r.out, msgs[len(msgs)-1].Content)
		return
	}
	fmt.Fprintf(r.out, "❌ %v\n", err)
}

func renderTable(w io.Writer, t *resultset.Table) {
	table := tablewriter.NewWriter(w)
	table.SetHeader(t.Header)
	table.SetAutoFormatHeaders(false)
	table.AppendBulk(t.Rows)
	table.Render()
}

func (r *repl) printHistory() {
	history := r.sess.History()
	if len(history) == 0 {
		fmt.Fprintln(r.out, "No queries yet.")
		return
	}
	rows := make([][]string, len(history))
	for i, h := range history {
		rows[i] = []string{strconv.Itoa(i + 1), h.Timestamp.Format("15:04:05"), h.Query, strconv.FormatFloat(h.ExecutionTime, 'f', 2, 64) + "s"}
	}
	renderTable(r.out, &resultset.Table{Header: []string{"#", "Time", "Query", "Duration"}, Rows: rows})
}

func (r *repl) printStats() {
	stats := r.sess.Stats()
	if stats == nil {
		fmt.Fprintln(r.out, "No statistics available.")
		return
	}
	rows := make([][]string, len(stats.Tables))
	for i, t := range stats.Tables {
		rows[i] = []string{t.Name, strconv.FormatInt(t.Rows, 10), strconv.Itoa(t.Columns)}
	}
	renderTable(r.out, &resultset.Table{Header: []string{"Table", "Records", "Columns"}, Rows: rows})
	usage := r.sess.Usage()
	fmt.Fprintf(r.out, "%d tables, %d records, %d queries (avg %.2fs)\n",
		stats.TableCount, stats.TotalRows, usage.QueriesExecuted, usage.AvgQueryTime)
}

func init() {
	f := askCmd.Flags()
	f.StringVar(&askSource, "source", "sample", "database source: sample, upload, server or url")
	f.StringVar(&askPath, "path", "", "SQLite file for --source upload")
	f.StringVar(&askEngine, "engine", "postgresql", "server engine: mysql or postgresql")
	f.StringVar(&askHost, "host", "", "server host")
	f.IntVar(&askPort, "port", 0, "server port (default per engine)")
	f.StringVar(&askUser, "user", "", "server username")
	f.StringVar(&askPassword, "password", "", "server password")
	f.StringVar(&askDatabase, "database", "", "server database name")
	f.StringVar(&askURL, "url", "", "PostgreSQL connection URL for --source url")
	f.StringVar(&askModel, "model", "", "model to use (default from config)")
	f.BoolVar(&askShowSQL, "show-sql", false, "print the SQL behind each answer")
	f.BoolVar(&askNoChart, "no-chart", false, "skip chart suggestions")
	f.BoolVarP(&askVerbose, "verbose", "v", false, "print agent tool calls")
	rootCmd.AddCommand(askCmd)
}
