package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/maneesh/tagdrop/internal/common"
	"github.com/maneesh/tagdrop/internal/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ParseCommand splits "/name@bot args" into a Command. It reports false
// when text is not a command.
func ParseCommand(msg models.Message) (models.Command, bool) {
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		return models.Command{}, false
	}

	name, args, _ := strings.Cut(text[1:], " ")
	name, _, _ = strings.Cut(name, "@")
	if name == "" {
		return models.Command{}, false
	}

	return models.Command{
		UserID:    msg.UserID,
		ChatID:    msg.ChatID,
		FirstName: msg.FirstName,
		Name:      strings.ToLower(name),
		Args:      strings.TrimSpace(args),
	}, true
}

// HandleCommand dispatches a slash command
func (o *Orchestrator) HandleCommand(ctx context.Context, cmd models.Command) (models.Response, error) {
	ctx, span := tracer.Start(ctx, "bot.handle_command",
		trace.WithAttributes(
			attribute.Int64("user_id", cmd.UserID),
			attribute.String("command", cmd.Name),
		),
	)
	defer span.End()

	var (
		resp models.Response
		err  error
	)
	switch cmd.Name {
	case "start":
		resp = o.start(cmd)
	case "help":
		resp = o.help()
	case "myaccount", "account":
		resp, err = o.account(ctx, cmd)
	case "delete":
		resp, err = o.deleteFile(ctx, cmd)
	case "find":
		resp, err = o.find(ctx, cmd)
	case "file":
		resp, err = o.fileInfo(ctx, cmd)
	default:
		resp = models.Respond(models.OutcomeInfo, "🤔 Unknown command. Send /help to see how to use this bot.")
	}
	if err != nil {
		span.RecordError(err)
		return models.Response{}, err
	}
	return o.finish(flowCommand, resp), nil
}

func (o *Orchestrator) start(cmd models.Command) models.Response {
	name := cmd.FirstName
	if name == "" {
		name = "there"
	}

	text := fmt.Sprintf(`👋 Hello *%s*!

Welcome to the File Search Bot.
You can easily search and download files by typing keywords.

📌 Here are some useful commands:
- 🔍 Just type any keyword (e.g. `+"`war`, `movie`"+`) to search files
- 🏁 /start → Restart the bot
- 📖 /help → Show how to use this bot
- 👤 /myaccount → Check your daily usage limit`, name)

	return models.Response{Outcome: models.OutcomeInfo}.Add(models.Reply{
		Text:     text,
		Markdown: true,
		Keyboard: [][]string{{"/help", "/myaccount"}, {"latest movie"}},
	})
}

func (o *Orchestrator) help() models.Response {
	text := fmt.Sprintf(`📖 *How to Use This Bot*

- Type a keyword (e.g. `+"`war`, `movie`, `action`"+`) to search.
- You'll see matching results and can click to download.
- You can search with multiple words.

⚠️ *Daily Limit*: You can download up to *%d* files per day. Limit resets at midnight.`, o.limit)

	return models.Response{Outcome: models.OutcomeInfo}.Add(models.Reply{
		Text:     text,
		Markdown: true,
		Buttons:  []models.Button{{Label: "🔍 Try Example: Avatar", Data: SearchCallbackPrefix + "avatar"}},
	})
}

func (o *Orchestrator) account(ctx context.Context, cmd models.Command) (models.Response, error) {
	today := o.deps.Quota.Today()
	used, err := o.deps.Quota.Peek(ctx, cmd.UserID)
	if err != nil {
		return models.Response{}, err
	}

	// refused attempts are charged, so used may exceed the limit
	remaining := max(o.limit-used, 0)

	text := fmt.Sprintf(`👤 *Your Account Details*

📅 Date: *%s*
✅ Used: *%d* files
⏳ Remaining: *%d* files
🎯 Daily Limit: *%d* files

🔄 Limit resets every midnight.`, today, used, remaining, o.limit)

	return models.Response{Outcome: models.OutcomeInfo}.Add(models.Reply{Text: text, Markdown: true}), nil
}

func (o *Orchestrator) deleteFile(ctx context.Context, cmd models.Command) (models.Response, error) {
	if !o.IsAdmin(cmd.UserID) {
		return models.Respond(models.OutcomeForbidden, "❌ You are not allowed to delete files."), nil
	}
	if cmd.Args == "" {
		return models.Respond(models.OutcomeRejected, "⚠️ Usage: /delete <file id>"), nil
	}

	removed, err := o.deps.Files.DeleteFile(ctx, cmd.Args)
	if err != nil {
		return models.Response{}, err
	}
	if removed == 0 {
		return models.Respond(models.OutcomeNotFound, "⚠️ No file found with that ID."), nil
	}

	if err := o.deps.Cache.InvalidateFileRecord(ctx, cmd.Args); err != nil {
		o.logger.Warn("Failed to invalidate cached record", zap.String("file_id", cmd.Args), zap.Error(err))
	}
	if err := o.deps.Transport.Discard(ctx, cmd.Args); err != nil {
		o.logger.Warn("Failed to remove payload of deleted file", zap.String("file_id", cmd.Args), zap.Error(err))
	}

	o.logger.Info("File deleted", zap.String("file_id", cmd.Args), zap.Int64("deleted_by", cmd.UserID))
	return models.Response{Outcome: models.OutcomeDeleted}.Add(models.Reply{
		Text:     fmt.Sprintf("🗑 File with ID *%s* deleted successfully.", cmd.Args),
		Markdown: true,
	}), nil
}

func (o *Orchestrator) find(ctx context.Context, cmd models.Command) (models.Response, error) {
	if !o.IsAdmin(cmd.UserID) {
		return models.Respond(models.OutcomeForbidden, "❌ This command is for admins only."), nil
	}
	if cmd.Args == "" {
		return models.Respond(models.OutcomeRejected, "⚠️ Usage: /find <keyword fragment>"), nil
	}

	files, err := o.deps.Search.Lookup(ctx, cmd.Args)
	if err != nil {
		return models.Response{}, err
	}
	if len(files) == 0 {
		return models.Respond(models.OutcomeNoResults, "❌ No files found."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d file(s):", len(files))
	for i, f := range files {
		if i == o.page {
			fmt.Fprintf(&b, "\n… and %d more", len(files)-o.page)
			break
		}
		fmt.Fprintf(&b, "\n• %s (%s): %s", f.DisplayName, f.ID, strings.Join(f.Keywords, ", "))
	}
	return models.Respond(models.OutcomeResults, b.String()), nil
}

func (o *Orchestrator) fileInfo(ctx context.Context, cmd models.Command) (models.Response, error) {
	if !o.IsAdmin(cmd.UserID) {
		return models.Respond(models.OutcomeForbidden, "❌ This command is for admins only."), nil
	}
	if cmd.Args == "" {
		return models.Respond(models.OutcomeRejected, "⚠️ Usage: /file <file id>"), nil
	}

	file, err := o.lookupRecord(ctx, cmd.Args)
	if errors.Is(err, common.ErrNotFound) {
		return models.Respond(models.OutcomeNotFound, "⚠️ No file found with that ID."), nil
	} else if err != nil {
		return models.Response{}, err
	}

	text := fmt.Sprintf("📄 %s\nFile ID: %s\nType: %s\nKeywords: %s\nCaption: %s\nAdded by: %d\nAdded at: %s",
		file.DisplayName, file.ID, file.Kind, strings.Join(file.Keywords, ", "),
		file.DeliveryCaption(), file.AddedBy, file.AddedAt.UTC().Format("2006-01-02 15:04 MST"))
	return models.Respond(models.OutcomeInfo, text), nil
}

// lookupRecord reads through the record cache
func (o *Orchestrator) lookupRecord(ctx context.Context, fileID string) (*models.FileRecord, error) {
	cached, err := o.deps.Cache.GetFileRecord(ctx, fileID)
	if err != nil {
		o.logger.Warn("Record cache read failed", zap.String("file_id", fileID), zap.Error(err))
	} else if cached != nil {
		return cached, nil
	}

	file, err := o.deps.Files.GetFile(ctx, fileID)
	if err != nil {
		return nil, err
	}

	if err := o.deps.Cache.SetFileRecord(ctx, file); err != nil {
		o.logger.Warn("Failed to cache record", zap.String("file_id", fileID), zap.Error(err))
	}
	return file, nil
}
