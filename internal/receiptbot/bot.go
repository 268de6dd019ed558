// Package receiptbot is a Telegram bot that verifies Base transactions and
// issues branded PDF receipts for them.
package receiptbot

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/mbd888/basemcp/internal/metrics"
	"github.com/mbd888/basemcp/internal/receipts"
	"github.com/mbd888/basemcp/internal/syncutil"
	"github.com/mbd888/basemcp/internal/txstatus"
)

// API is the part of the Telegram client the bot uses.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

// Watcher registers addresses for incoming-payment notifications.
type Watcher interface {
	Watch(addr common.Address)
}

// Config wires a Bot.
type Config struct {
	API        API
	Checker    *txstatus.Checker
	Receipts   *receipts.Service
	Settings   *SettingsStore
	HTTPClient *http.Client // logo downloads
	Logger     *slog.Logger
}

// Bot handles Telegram updates. Updates for one chat are processed one at
// a time; different chats run concurrently.
type Bot struct {
	api      API
	checker  *txstatus.Checker
	receipts *receipts.Service
	settings *SettingsStore
	sessions *Sessions
	chats    *syncutil.ContextShardedMutex
	http     *http.Client
	logger   *slog.Logger

	mu          sync.RWMutex
	watcher     Watcher
	subscribers map[common.Address]map[int64]struct{}
}

// New creates a bot.
func New(cfg Config) *Bot {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Bot{
		api:         cfg.API,
		checker:     cfg.Checker,
		receipts:    cfg.Receipts,
		settings:    cfg.Settings,
		sessions:    NewSessions(),
		chats:       syncutil.NewContextShardedMutex(),
		http:        client,
		logger:      logger,
		subscribers: make(map[common.Address]map[int64]struct{}),
	}
}

// Run handles updates until ctx is cancelled or the channel closes.
func (b *Bot) Run(ctx context.Context, updates <-chan tgbotapi.Update) {
	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				b.HandleUpdate(ctx, u)
			}()
		}
	}
}

// HandleUpdate dispatches one update.
func (b *Bot) HandleUpdate(ctx context.Context, u tgbotapi.Update) {
	var chatID int64
	switch {
	case u.CallbackQuery != nil && u.CallbackQuery.Message != nil && u.CallbackQuery.Message.Chat != nil:
		chatID = u.CallbackQuery.Message.Chat.ID
	case u.Message != nil && u.Message.Chat != nil:
		chatID = u.Message.Chat.ID
	default:
		return
	}

	unlock, err := b.chats.LockContext(ctx, strconv.FormatInt(chatID, 10))
	if err != nil {
		return
	}
	defer unlock()

	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("panic handling update", "chat_id", chatID, "panic", r)
		}
	}()

	switch {
	case u.CallbackQuery != nil:
		metrics.BotUpdatesTotal.WithLabelValues("callback").Inc()
		_, _ = b.api.Request(tgbotapi.NewCallback(u.CallbackQuery.ID, ""))
		b.handleCallback(ctx, chatID, u.CallbackQuery.Data)
	case u.Message.IsCommand():
		metrics.BotUpdatesTotal.WithLabelValues("command").Inc()
		b.handleCommand(ctx, chatID, u.Message.Command(), u.Message.CommandArguments())
	case len(u.Message.Photo) > 0:
		metrics.BotUpdatesTotal.WithLabelValues("photo").Inc()
		b.handlePhoto(ctx, chatID, u.Message.Photo)
	case u.Message.Text != "":
		metrics.BotUpdatesTotal.WithLabelValues("text").Inc()
		b.handleText(ctx, chatID, u.Message.Text)
	}
}

func (b *Bot) handleCommand(ctx context.Context, chatID int64, cmd, args string) {
	switch cmd {
	case "start":
		b.sessions.Clear(chatID)
		b.sendWelcome(chatID)
	case "verify":
		if args == "" {
			b.promptTransaction(chatID)
			return
		}
		b.verifyTransaction(ctx, chatID, args)
	case "cancel":
		if b.sessions.Clear(chatID) {
			b.send(chatID, "Current operation cancelled.", nil)
			b.sendWelcome(chatID)
		} else {
			b.send(chatID, "No active operation to cancel.", nil)
		}
	case "help":
		b.send(chatID, helpText, menuOnly())
	default:
		b.send(chatID, "Unknown command. Send /help for the list of commands.", nil)
	}
}

func (b *Bot) handleCallback(ctx context.Context, chatID int64, data string) {
	switch {
	case data == "verify_transaction":
		b.promptTransaction(chatID)
	case data == "past_receipts":
		b.showPastReceipts(ctx, chatID)
	case len(data) > len("receipt_") && data[:len("receipt_")] == "receipt_":
		b.resendReceipt(ctx, chatID, data[len("receipt_"):])
	case data == "settings":
		b.sessions.Clear(chatID)
		b.showSettings(chatID)
	case data == "set_business_name":
		b.sessions.Set(chatID, Session{State: StateAwaitingBusinessName})
		b.send(chatID, "<b>✏️ Set Business Name</b>\n\nPlease enter your business name that will appear on receipts:\n\n"+
			"<i>Example: \"Crypto Solutions Inc.\" or \"John's Web Services\"</i>", backToSettings())
	case data == "upload_logo":
		b.sessions.Set(chatID, Session{State: StateAwaitingLogo})
		b.send(chatID, "<b>🖼️ Upload Logo</b>\n\nPlease send your business logo as an image. For best results:\n\n"+
			"• Use a square or landscape image\n• Make sure it's clear at small sizes\n• PNG or JPG format\n\n"+
			"Your logo will appear at the top of receipts.", backToSettings())
	case data == "set_base_address":
		b.sessions.Set(chatID, Session{State: StateAwaitingBaseAddress})
		b.send(chatID, "<b>💼 Set Base Address</b>\n\nPlease enter your Base network wallet address:\n\n"+
			"<i>Example: \"0x1234567890abcdef1234567890abcdef12345678\"</i>\n\n"+
			"Incoming USDC payments to this address can be announced in this chat.", backToSettings())
	case data == "back_to_menu":
		b.sessions.Clear(chatID)
		b.sendWelcome(chatID)
	case data == "send_crypto":
		b.send(chatID, "<b>🚧 Coming Soon! 🚧</b>\n\nThe ability to send crypto directly through this bot is coming in a future update. Stay tuned!", menuOnly())
	case data == "receive_payment":
		b.receivePayment(chatID)
	default:
		b.logger.Warn("unknown callback", "chat_id", chatID, "data", data)
	}
}

func (b *Bot) handleText(ctx context.Context, chatID int64, text string) {
	sess, ok := b.sessions.Get(chatID)
	if !ok {
		b.send(chatID, "Send /start to open the menu.", nil)
		return
	}
	switch sess.State {
	case StateAwaitingTransactionID:
		b.verifyTransaction(ctx, chatID, text)
	case StateAwaitingReceiptDetails:
		b.generateReceipt(ctx, chatID, sess, text)
	case StateAwaitingBusinessName:
		b.setBusinessName(chatID, text)
	case StateAwaitingLogo:
		b.send(chatID, "Please send your business logo as a photo/image (not as a text message).", backToSettings())
	case StateAwaitingBaseAddress:
		b.setBaseAddress(chatID, text)
	}
}

func (b *Bot) sendWelcome(chatID int64) {
	b.send(chatID, "<b>Base Blockchain Receipt Generator</b>\n\n"+
		"Generate professional transaction receipts for Base network transactions. "+
		"Verify transactions, customize with your business name and logo, and get PDF receipts instantly.",
		mainMenu())
}

func (b *Bot) send(chatID int64, text string, markup *tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if markup != nil {
		msg.ReplyMarkup = *markup
	}
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Warn("telegram send failed", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) sendDocument(chatID int64, path, caption string, markup *tgbotapi.InlineKeyboardMarkup) error {
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FilePath(path))
	doc.Caption = caption
	doc.ParseMode = tgbotapi.ModeHTML
	if markup != nil {
		doc.ReplyMarkup = *markup
	}
	_, err := b.api.Send(doc)
	return err
}

func (b *Bot) typing(chatID int64) {
	_, _ = b.api.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping))
}

func code(s string) string {
	if s == "" {
		return "N/A"
	}
	return "<code>" + html.EscapeString(s) + "</code>"
}

func shortAddr(addr string) string {
	if len(addr) < 10 {
		return code(addr)
	}
	return code(addr[:6] + "..." + addr[len(addr)-4:])
}

const helpText = "<b>Commands</b>\n\n" +
	"/start - open the main menu\n" +
	"/verify &lt;tx hash&gt; - verify a Base transaction and create a receipt\n" +
	"/cancel - cancel the current operation\n" +
	"/help - show this message"

func button(text, data string) tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardButtonData(text, data)
}

func keyboard(rows ...[]tgbotapi.InlineKeyboardButton) *tgbotapi.InlineKeyboardMarkup {
	m := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &m
}

func mainMenu() *tgbotapi.InlineKeyboardMarkup {
	return keyboard(
		tgbotapi.NewInlineKeyboardRow(button("🔍 Verify Transaction", "verify_transaction"), button("📃 Past Receipts", "past_receipts")),
		tgbotapi.NewInlineKeyboardRow(button("💸 Send Crypto", "send_crypto"), button("📥 Receive Payment", "receive_payment")),
		tgbotapi.NewInlineKeyboardRow(button("⚙️ Settings", "settings")),
	)
}

func menuOnly() *tgbotapi.InlineKeyboardMarkup {
	return keyboard(tgbotapi.NewInlineKeyboardRow(button("🔙 Back to Menu", "back_to_menu")))
}

func backToSettings() *tgbotapi.InlineKeyboardMarkup {
	return keyboard(tgbotapi.NewInlineKeyboardRow(button("🔙 Back to Settings", "settings")))
}

func settingsSaved() *tgbotapi.InlineKeyboardMarkup {
	return keyboard(
		tgbotapi.NewInlineKeyboardRow(button("⚙️ View Settings", "settings")),
		tgbotapi.NewInlineKeyboardRow(button("🏠 Back to Main Menu", "back_to_menu")),
	)
}

func errorText(prefix string, err error) string {
	return fmt.Sprintf("%s: %s", prefix, html.EscapeString(err.Error()))
}
