package receiptbot

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/mbd888/basemcp/internal/chains"
	"github.com/mbd888/basemcp/internal/watcher"
)

// AttachWatcher routes incoming-payment notifications through w and
// re-registers every chat that enabled them before a restart.
func (b *Bot) AttachWatcher(w Watcher) error {
	b.mu.Lock()
	b.watcher = w
	b.mu.Unlock()

	all, err := b.settings.All()
	if err != nil {
		return err
	}
	for chatID, st := range all {
		if st.NotifyPayments && baseAddressPattern.MatchString(st.BaseAddress) {
			b.subscribe(chatID, common.HexToAddress(st.BaseAddress))
		}
	}
	return nil
}

// subscribe moves chatID's subscription to addr.
func (b *Bot) subscribe(chatID int64, addr common.Address) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for a, chats := range b.subscribers {
		delete(chats, chatID)
		if len(chats) == 0 {
			delete(b.subscribers, a)
		}
	}
	if b.subscribers[addr] == nil {
		b.subscribers[addr] = make(map[int64]struct{})
	}
	b.subscribers[addr][chatID] = struct{}{}
	if b.watcher != nil {
		b.watcher.Watch(addr)
	}
}

// Subscribers returns the chats notified for payments to addr.
func (b *Bot) Subscribers(addr common.Address) []int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]int64, 0, len(b.subscribers[addr]))
	for id := range b.subscribers[addr] {
		out = append(out, id)
	}
	return out
}

func (b *Bot) receivePayment(chatID int64) {
	st, err := b.settings.Load(chatID)
	if err != nil || !baseAddressPattern.MatchString(st.BaseAddress) {
		b.send(chatID, "<b>📥 Receive Payment</b>\n\nYou have not set a Base address yet. Set one in Settings to receive payments.",
			keyboard(
				tgbotapi.NewInlineKeyboardRow(button("💼 Set Base Address", "set_base_address")),
				tgbotapi.NewInlineKeyboardRow(button("🔙 Back to Menu", "back_to_menu")),
			))
		return
	}

	b.mu.RLock()
	watching := b.watcher != nil
	b.mu.RUnlock()

	text := "<b>📥 Receive Payment</b>\n\nSend ETH or USDC on Base to:\n" + code(st.BaseAddress) +
		"\n\n<a href=\"" + chains.AddressURL(chains.BaseMainnet, st.BaseAddress) + "\">View on BaseScan</a>"
	if watching {
		if _, err := b.settings.Update(chatID, func(s *Settings) { s.NotifyPayments = true }); err != nil {
			b.logger.Warn("enable payment notifications", "chat_id", chatID, "error", err)
		}
		b.subscribe(chatID, common.HexToAddress(st.BaseAddress))
		text += "\n\n🔔 You will be notified here when USDC arrives at this address."
	}
	b.send(chatID, text, menuOnly())
}

// NotifyPayment tells every chat subscribed to p.To about the transfer.
// It satisfies watcher.Notifier.
func (b *Bot) NotifyPayment(ctx context.Context, p watcher.Payment) error {
	chats := b.Subscribers(p.To)
	if len(chats) == 0 {
		return nil
	}
	hash := p.TxHash.Hex()
	text := "💰 <b>Payment received!</b>\n\n" +
		"• <b>Amount:</b> <code>" + p.AmountUSDC() + " USDC</code>\n" +
		"• <b>From:</b> " + code(p.From.Hex()) + "\n" +
		"• <b>Tx:</b> <a href=\"" + chains.TxURL(chains.BaseMainnet, hash) + "\">" + hash[:10] + "…</a>"
	markup := keyboard(tgbotapi.NewInlineKeyboardRow(button("🔍 Verify Transaction", "verify_transaction")))

	var errs []error
	for _, chatID := range chats {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg := tgbotapi.NewMessage(chatID, text)
		msg.ParseMode = tgbotapi.ModeHTML
		msg.DisableWebPagePreview = true
		msg.ReplyMarkup = *markup
		if _, err := b.api.Send(msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ watcher.Notifier = (*Bot)(nil)
