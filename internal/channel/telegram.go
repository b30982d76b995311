package channel

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"paintsense/internal/domain"
	"paintsense/internal/render"
)

const (
	telegramMaxMsgLen      = 4000
	telegramMaxSendRetries = 3
)

// BindFunc creates a per-chat pipeline bound to a chat's view and review
// surface. Each Telegram chat gets its own advisor and transcript.
type BindFunc func(view domain.View, surface domain.ReviewSurface) Pipeline

// Telegram runs the advice pipeline over a Telegram bot. Suggestions are
// presented as photo messages plus an inline Accept/Reject keyboard;
// answering the keyboard is the review decision.
type Telegram struct {
	token     string
	allowFrom []int64 // Allowed user IDs (empty = allow all)
	parseMode string

	bind   BindFunc
	voice  VoiceControl
	bot    *tgbotapi.BotAPI
	logger *slog.Logger

	sessionsMu sync.Mutex
	sessions   map[int64]*tgSession
}

type TelegramConfig struct {
	Token     string
	AllowFrom []string // User IDs as strings
	ParseMode string
	Bind      BindFunc
	Voice     VoiceControl
	Logger    *slog.Logger
}

func NewTelegram(cfg TelegramConfig) *Telegram {
	var allowed []int64
	for _, s := range cfg.AllowFrom {
		if id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			allowed = append(allowed, id)
		}
	}
	if cfg.ParseMode == "" {
		cfg.ParseMode = "Markdown"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Telegram{
		token:     cfg.Token,
		allowFrom: allowed,
		parseMode: cfg.ParseMode,
		bind:      cfg.Bind,
		voice:     cfg.Voice,
		logger:    cfg.Logger,
		sessions:  make(map[int64]*tgSession),
	}
}

func (t *Telegram) Name() string { return "telegram" }

// Start connects to Telegram and begins polling for updates. Blocks until
// context cancellation.
func (t *Telegram) Start(ctx context.Context) error {
	bot, err := tgbotapi.NewBotAPI(t.token)
	if err != nil {
		return fmt.Errorf("telegram bot init: %w", err)
	}
	t.bot = bot
	t.logger.Info("telegram bot connected",
		"username", bot.Self.UserName,
		"id", bot.Self.ID,
	)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := bot.GetUpdatesChan(u)

	t.logger.Info("telegram polling started")

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("telegram gateway stopping")
			bot.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			t.handleUpdate(ctx, update)
		}
	}
}

// session returns the per-chat state, creating and binding a fresh
// pipeline on first contact.
func (t *Telegram) session(chatID int64) *tgSession {
	t.sessionsMu.Lock()
	defer t.sessionsMu.Unlock()
	if s, ok := t.sessions[chatID]; ok {
		return s
	}
	s := &tgSession{gw: t, chatID: chatID}
	s.pipeline = t.bind(s, s)
	t.sessions[chatID] = s
	return s
}

func (t *Telegram) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.CallbackQuery != nil {
		t.handleCallback(update.CallbackQuery)
		return
	}

	if update.Message == nil || update.Message.From == nil || update.Message.Chat == nil {
		return
	}

	userID := update.Message.From.ID
	chatID := update.Message.Chat.ID

	if !t.isAllowed(userID) {
		t.logger.Warn("unauthorized telegram user",
			"user_id", userID,
			"username", update.Message.From.UserName,
		)
		t.sendMessage(chatID, "Unauthorized. Your user ID is not in the allow list.")
		return
	}

	s := t.session(chatID)

	if update.Message.IsCommand() {
		t.handleCommand(s, update.Message)
		return
	}

	if len(update.Message.Photo) > 0 {
		t.handlePhoto(ctx, s, update.Message)
		return
	}
	if update.Message.Voice != nil {
		t.handleVoice(ctx, s, update.Message)
		return
	}

	text := strings.TrimSpace(update.Message.Text)
	if text == "" {
		return
	}

	t.logger.Info("telegram message received",
		"user_id", userID,
		"chat_id", chatID,
		"text_len", len(text),
	)

	typing := tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)
	_, _ = t.bot.Send(typing)

	s.submit(ctx, text)
}

// handlePhoto downloads the largest rendition and either submits it right
// away (photo carries a caption) or stages it for the next text message.
func (t *Telegram) handlePhoto(ctx context.Context, s *tgSession, msg *tgbotapi.Message) {
	best := msg.Photo[len(msg.Photo)-1]
	data, err := t.download(ctx, best.FileID)
	if err != nil {
		t.logger.Error("photo download failed", "chat_id", s.chatID, "err", err)
		t.sendMessage(s.chatID, fmt.Sprintf("Could not fetch that photo: %v", err))
		return
	}

	att := domain.Attachment{
		Filename: best.FileUniqueID + ".jpg",
		MimeType: "image/jpeg",
		Data:     data,
	}
	s.stage(att)

	caption := strings.TrimSpace(msg.Caption)
	if caption == "" {
		t.sendMessage(s.chatID, "Photo attached. Describe the room (or send more photos), and I'll take it from there.")
		return
	}
	s.submit(ctx, caption)
}

// handleVoice transcribes a voice note and submits the text as if typed.
func (t *Telegram) handleVoice(ctx context.Context, s *tgSession, msg *tgbotapi.Message) {
	if t.voice == nil || !t.voice.CanListen() {
		t.sendMessage(s.chatID, "Voice notes need a configured transcription backend.")
		return
	}
	data, err := t.download(ctx, msg.Voice.FileID)
	if err != nil {
		t.logger.Error("voice download failed", "chat_id", s.chatID, "err", err)
		return
	}
	text, err := t.voice.TranscribeText(ctx, bytes.NewReader(data), "note.ogg")
	if err != nil {
		t.sendMessage(s.chatID, fmt.Sprintf("Transcription failed: %v", err))
		return
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	s.submit(ctx, text)
}

func (t *Telegram) handleCallback(cq *tgbotapi.CallbackQuery) {
	if cq.Message == nil || cq.Message.Chat == nil {
		return
	}
	chatID := cq.Message.Chat.ID

	callback := tgbotapi.NewCallback(cq.ID, "")
	_, _ = t.bot.Request(callback)

	s := t.session(chatID)
	s.reviewMu.Lock()
	accept, reject := s.onAccept, s.onReject
	s.reviewMu.Unlock()
	if accept == nil {
		return
	}

	switch cq.Data {
	case "review_accept":
		accept()
	case "review_reject":
		reject()
	}
}

func (t *Telegram) handleCommand(s *tgSession, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start":
		t.sendMessage(s.chatID, "Hello! I'm PaintSense. Send room photos and a description, and I'll suggest paint colors.\n\nCommands:\n/swatches — Hex codes from the last recommendation\n/voice — Toggle spoken replies\n/help — Show this message")
	case "help":
		t.sendMessage(s.chatID, "*PaintSense Help*\n\nSend photos of your room with a caption describing it. I'll come back with a suggestion to accept or reject; accepting gets you full color recommendations and preparation tips.\n\nCommands:\n/swatches — Hex codes from the last recommendation\n/voice — Toggle spoken replies")
	case "swatches":
		payload := s.pipeline.LastRecommendations()
		codes := render.Swatches(render.Recommendations(payload))
		if len(codes) == 0 {
			t.sendMessage(s.chatID, "No recommendation yet.")
		} else {
			t.sendMessage(s.chatID, strings.Join(codes, " "))
		}
	case "voice":
		if t.voice == nil || !t.voice.CanSpeak() {
			t.sendMessage(s.chatID, "Voice replies are not available.")
			return
		}
		on := !t.voice.ReplyEnabled()
		t.voice.SetReplyEnabled(on)
		if on {
			t.sendMessage(s.chatID, "Voice replies on.")
		} else {
			t.sendMessage(s.chatID, "Voice replies off.")
		}
	default:
		t.sendMessage(s.chatID, "Unknown command. Type /help for available commands.")
	}
}

func (t *Telegram) download(ctx context.Context, fileID string) ([]byte, error) {
	url, err := t.bot.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("resolve file URL: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch file: status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (t *Telegram) isAllowed(userID int64) bool {
	if len(t.allowFrom) == 0 {
		return true // Empty list = allow all
	}
	for _, id := range t.allowFrom {
		if id == userID {
			return true
		}
	}
	return false
}

func (t *Telegram) sendMessage(chatID int64, text string) int {
	// Telegram has a 4096 char limit per message
	lastID := 0
	for len(text) > 0 {
		chunk := text
		if len(chunk) > telegramMaxMsgLen {
			cutAt := strings.LastIndex(chunk[:telegramMaxMsgLen], "\n")
			if cutAt < telegramMaxMsgLen/2 {
				cutAt = telegramMaxMsgLen
			}
			chunk = text[:cutAt]
			text = text[cutAt:]
		} else {
			text = ""
		}

		if id := t.sendChunk(chatID, chunk); id != 0 {
			lastID = id
		}
	}
	return lastID
}

// sendChunk sends a single message chunk with rate-limit handling.
// Strategy: try the configured parse mode first, fall back to plain text
// on parse errors. Returns the sent message ID.
func (t *Telegram) sendChunk(chatID int64, text string) int {
	for attempt := 0; attempt <= telegramMaxSendRetries; attempt++ {
		msg := tgbotapi.NewMessage(chatID, text)
		if attempt == 0 && t.parseMode != "" {
			msg.ParseMode = t.parseMode
		}

		sent, err := t.bot.Send(msg)
		if err == nil {
			return sent.MessageID
		}

		errStr := err.Error()

		if strings.Contains(errStr, "Too Many Requests") || strings.Contains(errStr, "429") {
			retryAfter := time.Duration(attempt+1) * 3 * time.Second
			t.logger.Warn("telegram rate limited, backing off",
				"retry_after", retryAfter, "attempt", attempt+1,
			)
			time.Sleep(retryAfter)
			continue
		}

		if attempt == 0 && msg.ParseMode != "" &&
			strings.Contains(errStr, "can't parse entities") {
			t.logger.Warn("telegram markdown parse error, retrying as plain text",
				"err", err, "parseMode", t.parseMode,
			)
			if sent, err2 := t.bot.Send(tgbotapi.NewMessage(chatID, text)); err2 == nil {
				return sent.MessageID
			}
		}

		if attempt < telegramMaxSendRetries {
			backoff := time.Duration(attempt+1) * time.Second
			t.logger.Warn("telegram send error, retrying", "err", err, "backoff", backoff)
			time.Sleep(backoff)
			continue
		}

		t.logger.Error("telegram send failed after retries", "err", err)
	}
	return 0
}

// tgSession is one chat's view, review surface and staged attachments.
type tgSession struct {
	gw       *Telegram
	chatID   int64
	pipeline Pipeline

	mu     sync.Mutex
	input  string
	images []domain.Attachment

	reviewMu    sync.Mutex
	onAccept    func()
	onReject    func()
	promptMsgID int
}

func (s *tgSession) stage(att domain.Attachment) {
	s.mu.Lock()
	s.images = append(s.images, att)
	s.mu.Unlock()
}

// submit runs the pipeline off the polling goroutine so long round trips
// never stall other chats.
func (s *tgSession) submit(ctx context.Context, text string) {
	s.mu.Lock()
	bundle := domain.Bundle{Text: text, Images: s.images}
	s.mu.Unlock()

	go s.pipeline.Submit(ctx, bundle)
}

// ---- domain.View ----

func (s *tgSession) Append(role domain.Role, text string) domain.EntryHandle {
	if role == domain.RoleUser {
		// The user's own message is already in the chat.
		return &tgEntry{s: s}
	}
	id := s.gw.sendMessage(s.chatID, text)
	return &tgEntry{s: s, messageID: id}
}

func (s *tgSession) InputText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.input
}

func (s *tgSession) SetInputText(text string) {
	s.mu.Lock()
	s.input = text
	s.mu.Unlock()
}

func (s *tgSession) ClearInput() {
	s.mu.Lock()
	s.input = ""
	s.images = nil
	s.mu.Unlock()
}

func (s *tgSession) FocusInput() {}

func (s *tgSession) Notify(text string) {
	s.gw.sendMessage(s.chatID, text)
}

func (s *tgSession) Alert(text string) {
	s.gw.sendMessage(s.chatID, "⚠ "+text)
}

// ---- domain.ReviewSurface ----

// Present posts each attachment as a photo with its description as the
// caption, then an Accept/Reject keyboard the callbacks answer.
func (s *tgSession) Present(items []domain.ReviewItem) {
	for _, item := range items {
		photo := tgbotapi.NewPhoto(s.chatID, tgbotapi.FileBytes{
			Name:  item.Attachment.Filename,
			Bytes: item.Attachment.Data,
		})
		photo.Caption = item.Description
		if _, err := s.gw.bot.Send(photo); err != nil {
			s.gw.logger.Warn("review photo send failed", "chat_id", s.chatID, "err", err)
		}
	}

	msg := tgbotapi.NewMessage(s.chatID, "Accept this suggestion?")
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Accept", "review_accept"),
			tgbotapi.NewInlineKeyboardButtonData("❌ Reject", "review_reject"),
		),
	)
	sent, err := s.gw.bot.Send(msg)
	if err != nil {
		s.gw.logger.Error("review prompt send failed", "chat_id", s.chatID, "err", err)
		return
	}
	s.reviewMu.Lock()
	s.promptMsgID = sent.MessageID
	s.reviewMu.Unlock()
}

func (s *tgSession) Hide() {
	s.reviewMu.Lock()
	s.onAccept, s.onReject = nil, nil
	msgID := s.promptMsgID
	s.promptMsgID = 0
	s.reviewMu.Unlock()

	if msgID != 0 {
		edit := tgbotapi.NewEditMessageReplyMarkup(s.chatID, msgID,
			tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}})
		_, _ = s.gw.bot.Send(edit)
	}
}

func (s *tgSession) Rebind(onAccept, onReject func()) {
	s.reviewMu.Lock()
	s.onAccept, s.onReject = onAccept, onReject
	s.reviewMu.Unlock()
}

// ---- entry handle ----

type tgEntry struct {
	s         *tgSession
	messageID int
}

// SetText edits the original message in place, so the thinking
// placeholder morphs into the reply the same way it does in the CLI.
func (e *tgEntry) SetText(text string) {
	if e.messageID == 0 {
		e.s.gw.sendMessage(e.s.chatID, text)
		return
	}
	edit := tgbotapi.NewEditMessageText(e.s.chatID, e.messageID, text)
	if _, err := e.s.gw.bot.Send(edit); err != nil {
		e.s.gw.sendMessage(e.s.chatID, text)
	}
}
