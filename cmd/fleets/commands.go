package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/gofrs/uuid/v5"
	"github.com/spf13/cobra"

	"github.com/fleetsapp/fleets/internal/authflow"
	"github.com/fleetsapp/fleets/internal/clientstate"
	"github.com/fleetsapp/fleets/internal/inbox"
	"github.com/fleetsapp/fleets/internal/model"
	"github.com/fleetsapp/fleets/internal/notebook"
	"github.com/fleetsapp/fleets/internal/store/remote"
)

// --- login / logout ---

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in through the messaging bot",
	Long: `Sign in through the messaging bot.

Prints a session id to forward to the bot as /start <id>, then polls the
server until the bot confirms the login. Interrupt with Ctrl-C to abandon
the attempt.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		botName, _ := cmd.Flags().GetString("bot")

		st, err := clientstate.Open(dataDir)
		if err != nil {
			return fmt.Errorf("opening local state: %w", err)
		}
		defer st.Close()

		if _, ok, err := st.Tokens(); err != nil {
			return err
		} else if ok {
			printWarning("already logged in, run `fleets logout` first")
			return nil
		}

		log := newLogger()
		client := remote.New(serverURL)
		poller := authflow.NewPoller(client, st, log)

		id, err := poller.SessionID()
		if err != nil {
			return err
		}
		printStep("Send this to the bot to sign in:")
		fmt.Fprintf(os.Stdout, "\n    /start %s\n\n", id)
		if botName != "" {
			fmt.Fprintf(os.Stdout, "    https://t.me/%s?start=%s\n\n", botName, id)
		}
		printStep("Waiting for confirmation...")

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		// a resumed process re-checks immediately instead of waiting out
		// the poll interval
		wake := make(chan os.Signal, 1)
		signal.Notify(wake, syscall.SIGCONT)
		defer signal.Stop(wake)
		go func() {
			for range wake {
				poller.Wake()
			}
		}()

		tokens, err := poller.Run(ctx)
		if err != nil {
			if ctx.Err() != nil {
				printWarning("login abandoned")
				return nil
			}
			return err
		}
		if err := st.SetTokens(tokens); err != nil {
			return fmt.Errorf("saving session: %w", err)
		}
		printSuccess("Signed in as %s", tokens.User.FirstName)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Drop the local session",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := clientstate.Open(dataDir)
		if err != nil {
			return fmt.Errorf("opening local state: %w", err)
		}
		defer st.Close()

		if err := st.ClearTokens(); err != nil {
			return err
		}
		if err := st.ClearSessionID(); err != nil {
			return err
		}
		if err := st.SaveSnapshot(nil); err != nil {
			return err
		}
		printSuccess("Logged out")
		return nil
	},
}

// --- notes ---

var addCmd = &cobra.Command{
	Use:   "add <content>",
	Short: "Add a note",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")

		var att *notebook.AttachmentUpload
		if file != "" {
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("reading attachment: %w", err)
			}
			att = &notebook.AttachmentUpload{
				Name: filepath.Base(file),
				Data: data,
			}
		}

		e, err := openEngine(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer e.close()

		n := e.disp.Create(strings.Join(args, " "), att)
		e.disp.Wait()
		printSuccess("Added %s", shortID(n.ID))
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List notes, oldest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		offline, _ := cmd.Flags().GetBool("offline")

		e, err := openEngine(cmd.Context(), !offline)
		if err != nil {
			return err
		}
		defer e.close()

		notes := e.cache.Snapshot()
		if len(notes) == 0 {
			fmt.Fprintln(os.Stdout, "no notes")
			return nil
		}
		for _, n := range notes {
			printNote(n)
		}
		return nil
	},
}

var editCmd = &cobra.Command{
	Use:   "edit <id> <content>",
	Short: "Replace a note's content",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer e.close()

		id, err := resolveID(e, args[0])
		if err != nil {
			return err
		}
		e.disp.Update(id, strings.Join(args[1:], " "))
		printSuccess("Updated %s", shortID(id))
		return nil
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a note",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer e.close()

		id, err := resolveID(e, args[0])
		if err != nil {
			return err
		}
		e.disp.Delete(id)
		e.disp.Wait()
		printSuccess("Deleted %s", shortID(id))
		return nil
	},
}

var pinCmd = &cobra.Command{
	Use:   "pin <id>",
	Short: "Pin a note, or unpin it if already pinned",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer e.close()

		id, err := resolveID(e, args[0])
		if err != nil {
			return err
		}
		n, ok := e.cache.Get(id)
		if !ok {
			return fmt.Errorf("no note matching %q", args[0])
		}
		e.disp.SetPinned(id, !n.IsPinned)
		e.disp.Wait()
		if n.IsPinned {
			printSuccess("Unpinned %s", shortID(id))
		} else {
			printSuccess("Pinned %s", shortID(id))
		}
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the change feed and reprint the list on every change",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		e, err := openEngine(ctx, true)
		if err != nil {
			return err
		}
		defer e.close()

		changed := make(chan struct{}, 1)
		e.cache.OnChange(func() {
			select {
			case changed <- struct{}{}:
			default:
			}
		})

		printList := func() {
			fmt.Fprintf(os.Stdout, "--- %d notes ---\n", e.cache.Len())
			for _, n := range e.cache.Snapshot() {
				printNote(n)
			}
		}
		printList()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-changed:
				printList()
			}
		}
	},
}

// --- inbox ---

var inboxCmd = &cobra.Command{
	Use:   "inbox",
	Short: "Triage captured items",
}

var inboxListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show pending captures",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer e.close()

		q := inbox.NewQueue(e.client, e.disp, e.log)
		if err := q.Load(cmd.Context()); err != nil {
			return err
		}
		if q.Len() == 0 {
			fmt.Fprintln(os.Stdout, "inbox empty")
			return nil
		}
		card, _ := q.Peek()
		fmt.Fprintf(os.Stdout, "%d pending, next: %s\n", q.Len(), card.Item.Content)
		return nil
	},
}

var inboxAcceptCmd = &cobra.Command{
	Use:   "accept",
	Short: "Turn the next captured item into a note",
	RunE:  func(cmd *cobra.Command, args []string) error { return triage(cmd.Context(), true) },
}

var inboxRejectCmd = &cobra.Command{
	Use:   "reject",
	Short: "Discard the next captured item",
	RunE:  func(cmd *cobra.Command, args []string) error { return triage(cmd.Context(), false) },
}

var inboxAddCmd = &cobra.Command{
	Use:   "add <content>",
	Short: "Capture an item for later triage",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tagsStr, _ := cmd.Flags().GetString("tags")
		var tags []string
		if tagsStr != "" {
			tags = strings.Split(tagsStr, ",")
			for i := range tags {
				tags[i] = strings.TrimSpace(tags[i])
			}
		}

		e, err := openEngine(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer e.close()

		item := model.InboxItem{Content: strings.Join(args, " "), Kind: "text", Tags: tags}
		if err := e.client.Capture(cmd.Context(), []model.InboxItem{item}); err != nil {
			return err
		}
		printSuccess("Captured")
		return nil
	},
}

func triage(ctx context.Context, accept bool) error {
	e, err := openEngine(ctx, true)
	if err != nil {
		return err
	}
	defer e.close()

	q := inbox.NewQueue(e.client, e.disp, e.log)
	if err := q.Load(ctx); err != nil {
		return err
	}
	card, ok := q.Peek()
	if !ok {
		fmt.Fprintln(os.Stdout, "inbox empty")
		return nil
	}
	if accept {
		if err := q.Accept(ctx); err != nil {
			return err
		}
		e.disp.Wait()
		printSuccess("Accepted: %s", card.Item.Content)
	} else {
		if err := q.Reject(ctx); err != nil {
			return err
		}
		printSuccess("Rejected: %s", card.Item.Content)
	}
	return nil
}

// --- helpers ---

func shortID(id uuid.UUID) string { return id.String()[:8] }

// resolveID accepts a full uuid or an unambiguous short prefix of a cached
// note id.
func resolveID(e *engine, arg string) (uuid.UUID, error) {
	if id, err := uuid.FromString(arg); err == nil {
		return id, nil
	}
	var match uuid.UUID
	var found int
	for _, n := range e.cache.Snapshot() {
		if strings.HasPrefix(n.ID.String(), arg) {
			match = n.ID
			found++
		}
	}
	switch found {
	case 0:
		return uuid.Nil, fmt.Errorf("no note matching %q", arg)
	case 1:
		return match, nil
	default:
		return uuid.Nil, fmt.Errorf("%q is ambiguous (%d matches)", arg, found)
	}
}

func printNote(n model.Note) {
	marker := "  "
	if n.IsPinned {
		marker = colorize(colorBold, "* ")
	}
	line := fmt.Sprintf("%s%s  %s  %s",
		marker,
		colorize(colorCyan, shortID(n.ID)),
		n.CreatedAt.Local().Format("2006-01-02 15:04"),
		n.Content,
	)
	if n.Attachment != nil {
		line += colorize(colorYellow, "  ["+n.Attachment.Name+"]")
	}
	fmt.Fprintln(os.Stdout, line)
}

func init() {
	loginCmd.Flags().String("bot", "", "bot username for the clickable sign-in link")
	addCmd.Flags().String("file", "", "attach a file to the note")
	listCmd.Flags().Bool("offline", false, "skip the server, list the local snapshot")
	inboxAddCmd.Flags().String("tags", "", "comma-separated tags")

	inboxCmd.AddCommand(inboxListCmd)
	inboxCmd.AddCommand(inboxAcceptCmd)
	inboxCmd.AddCommand(inboxRejectCmd)
	inboxCmd.AddCommand(inboxAddCmd)
}
