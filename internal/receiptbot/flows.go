package receiptbot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"math/big"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/mbd888/basemcp/internal/chains"
	"github.com/mbd888/basemcp/internal/receipts"
	"github.com/mbd888/basemcp/internal/txstatus"
	"github.com/mbd888/basemcp/internal/units"
)

const (
	maxBusinessName = 50
	maxLogoBytes    = 10 << 20
)

var baseAddressPattern = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

func (b *Bot) promptTransaction(chatID int64) {
	b.sessions.Set(chatID, Session{State: StateAwaitingTransactionID})
	b.send(chatID, "Please paste the Base transaction hash you want to verify:", menuOnly())
}

func (b *Bot) verifyTransaction(ctx context.Context, chatID int64, input string) {
	hash := strings.TrimSpace(input)
	if !txstatus.ValidHash(hash) {
		b.sessions.Set(chatID, Session{State: StateAwaitingTransactionID})
		b.send(chatID, "That does not look like a transaction hash. It should be 0x followed by 64 hexadecimal characters. Please try again:", menuOnly())
		return
	}

	b.send(chatID, "Verifying transaction "+code(hash)+"...", nil)

	st, err := b.checker.Check(ctx, hash, chains.BaseMainnet)
	switch {
	case errors.Is(err, txstatus.ErrNotFound):
		b.sessions.Clear(chatID)
		b.send(chatID, "Transaction not found. Please check the transaction ID and try again.", menuOnly())
		return
	case err != nil:
		b.logger.Error("verify transaction", "chat_id", chatID, "tx", hash, "error", err)
		b.sessions.Clear(chatID)
		b.send(chatID, errorText("Error verifying transaction", err), menuOnly())
		return
	}

	switch st.Status {
	case txstatus.StatusFailed:
		b.sessions.Clear(chatID)
		b.send(chatID, "❌ Transaction failed. Cannot generate receipt for failed transactions.", menuOnly())
		return
	case txstatus.StatusPending:
		b.sessions.Clear(chatID)
		b.send(chatID, "⏳ Transaction is still pending. Please try again once it has been confirmed.", menuOnly())
		return
	}

	tx := receipts.Tx{Hash: hash, From: deref(st.From), To: deref(st.To), AmountEth: "0"}
	if st.Value != nil {
		if wei, ok := new(big.Int).SetString(*st.Value, 10); ok {
			tx.AmountEth = units.FormatEther(wei)
		}
	}
	if st.BlockNumber != nil {
		tx.BlockNumber, _ = strconv.ParseUint(*st.BlockNumber, 10, 64)
	}
	b.sessions.Set(chatID, Session{State: StateAwaitingReceiptDetails, Tx: &tx})

	b.send(chatID, "✅ <b>Transaction verified successfully!</b>\n\n"+
		"<b>Transaction details:</b>\n"+
		"• <b>Hash:</b> "+code(tx.Hash)+"\n"+
		"• <b>Block:</b> <code>"+strconv.FormatUint(tx.BlockNumber, 10)+"</code>\n"+
		"• <b>Status:</b> Success\n"+
		"• <b>From:</b> "+code(tx.From)+"\n"+
		"• <b>To:</b> "+code(tx.To)+"\n"+
		"• <b>Amount:</b> <code>"+tx.AmountEth+" ETH</code>\n\n"+
		"Now, please enter the receipt details:\n\n"+
		"<b>First line:</b> Buyer name\n"+
		"<b>Second line:</b> Product details\n\n"+
		"<i>Example:</i>\n"+
		"<code>John Doe\nBase Network Course</code>",
		menuOnly())
}

func (b *Bot) generateReceipt(ctx context.Context, chatID int64, sess Session, details string) {
	if sess.Tx == nil {
		b.sessions.Clear(chatID)
		b.sendWelcome(chatID)
		return
	}
	b.send(chatID, "Generating your receipt...", nil)

	req := receipts.IssueRequest{ChatID: chatID, Tx: *sess.Tx, Details: details}
	if st, err := b.settings.Load(chatID); err != nil {
		b.logger.Warn("load settings", "chat_id", chatID, "error", err)
	} else {
		req.BusinessName = st.BusinessName
		if st.HasLogo() {
			req.LogoPath = st.LogoPath
		}
	}

	r, err := b.receipts.Issue(ctx, req)
	if err != nil {
		b.logger.Error("generate receipt", "chat_id", chatID, "tx", sess.Tx.Hash, "error", err)
		b.send(chatID, errorText("Error generating receipt", err), menuOnly())
		return
	}
	b.sessions.Clear(chatID)

	caption := "Here's your receipt for the verified transaction!"
	if r.Signature != "" {
		caption += "\n\nVerification code: <code>" + receipts.VerificationCode(r.Signature) + "</code>"
	}
	if err := b.sendDocument(chatID, r.PDFPath, caption, menuOnly()); err != nil {
		b.logger.Error("send receipt", "chat_id", chatID, "receipt_id", r.ID, "error", err)
		b.send(chatID, errorText("Error generating receipt", err), menuOnly())
		return
	}
	b.logger.Info("receipt issued", "chat_id", chatID, "receipt_id", r.ID, "tx", r.TxHash)
}

func (b *Bot) showPastReceipts(ctx context.Context, chatID int64) {
	rs, err := b.receipts.Recent(ctx, chatID)
	if err != nil {
		b.logger.Error("list receipts", "chat_id", chatID, "error", err)
		b.send(chatID, errorText("Error loading receipts", err), menuOnly())
		return
	}
	if len(rs) == 0 {
		b.send(chatID, "You have no past receipts.", menuOnly())
		return
	}
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(rs)+1)
	for _, r := range rs {
		short := strings.TrimSuffix(strings.TrimPrefix(receipts.FileName(r.TxHash), "receipt-"), ".pdf")
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(button("Receipt: "+short, "receipt_"+short)))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(button("🔙 Back to Menu", "back_to_menu")))
	b.send(chatID, "<b>Your recent receipts:</b>", keyboard(rows...))
}

func (b *Bot) resendReceipt(ctx context.Context, chatID int64, hash string) {
	back := keyboard(tgbotapi.NewInlineKeyboardRow(button("🔙 Back to Receipts", "past_receipts")))
	r, err := b.receipts.ByTx(ctx, chatID, hash)
	if err == nil {
		if _, statErr := os.Stat(r.PDFPath); statErr != nil {
			err = statErr
		}
	}
	if err != nil {
		if !errors.Is(err, receipts.ErrReceiptNotFound) && !errors.Is(err, os.ErrNotExist) {
			b.logger.Error("load receipt", "chat_id", chatID, "tx", hash, "error", err)
		}
		b.send(chatID, "Receipt not found.", back)
		return
	}
	if err := b.sendDocument(chatID, r.PDFPath, "Receipt for transaction "+code(hash), back); err != nil {
		b.logger.Error("send receipt", "chat_id", chatID, "receipt_id", r.ID, "error", err)
	}
}

func (b *Bot) showSettings(chatID int64) {
	st, err := b.settings.Load(chatID)
	if err != nil {
		b.logger.Warn("load settings", "chat_id", chatID, "error", err)
		st = &Settings{}
	}
	name := "Not set"
	if st.BusinessName != "" {
		name = `"` + html.EscapeString(st.BusinessName) + `"`
	}
	logo := "Not uploaded"
	if st.HasLogo() {
		logo = "Uploaded ✅"
	}
	addr := "Not set"
	if st.BaseAddress != "" {
		addr = shortAddr(st.BaseAddress)
	}
	b.send(chatID, "<b>⚙️ Settings</b>\n\n"+
		"<b>Business Name:</b> "+name+"\n"+
		"<b>Logo:</b> "+logo+"\n"+
		"<b>Base Address:</b> "+addr+"\n\n"+
		"These settings will appear on all your generated receipts.",
		keyboard(
			tgbotapi.NewInlineKeyboardRow(button("✏️ Set Business Name", "set_business_name")),
			tgbotapi.NewInlineKeyboardRow(button("🖼️ Upload Logo", "upload_logo")),
			tgbotapi.NewInlineKeyboardRow(button("💼 Set Base Address", "set_base_address")),
			tgbotapi.NewInlineKeyboardRow(button("🔙 Back to Menu", "back_to_menu")),
		))
}

func (b *Bot) setBusinessName(chatID int64, text string) {
	name := strings.TrimSpace(text)
	if name == "" || len([]rune(name)) > maxBusinessName {
		b.send(chatID, "Business name is too long. Please enter a name under 50 characters.", backToSettings())
		return
	}
	b.typing(chatID)
	if _, err := b.settings.Update(chatID, func(s *Settings) { s.BusinessName = name }); err != nil {
		b.logger.Error("save business name", "chat_id", chatID, "error", err)
		b.send(chatID, "Error saving business name. Please try again.", backToSettings())
		return
	}
	b.sessions.Clear(chatID)
	b.send(chatID, "✅ <b>Business name successfully saved!</b>\n\n"+
		"Your business name has been updated to: <b>\""+html.EscapeString(name)+"\"</b>\n\n"+
		"This name will appear on all your generated receipts.", settingsSaved())
}

func (b *Bot) setBaseAddress(chatID int64, text string) {
	addr := strings.TrimSpace(text)
	if !baseAddressPattern.MatchString(addr) {
		b.send(chatID, "Invalid Base address format. Please enter a valid Ethereum address (0x followed by 40 hexadecimal characters).", backToSettings())
		return
	}
	b.typing(chatID)
	st, err := b.settings.Update(chatID, func(s *Settings) { s.BaseAddress = addr })
	if err != nil {
		b.logger.Error("save base address", "chat_id", chatID, "error", err)
		b.send(chatID, "Error saving Base address. Please try again.", backToSettings())
		return
	}
	b.sessions.Clear(chatID)
	if st.NotifyPayments {
		b.subscribe(chatID, common.HexToAddress(addr))
	}
	b.send(chatID, "✅ <b>Base address successfully saved!</b>\n\nYour Base address has been set to:\n"+code(addr), settingsSaved())
}

func (b *Bot) handlePhoto(ctx context.Context, chatID int64, photos []tgbotapi.PhotoSize) {
	sess, ok := b.sessions.Get(chatID)
	if !ok || sess.State != StateAwaitingLogo {
		return
	}
	b.typing(chatID)

	largest := photos[len(photos)-1]
	path := b.settings.LogoPath(chatID)
	if err := b.downloadLogo(ctx, largest.FileID, path); err != nil {
		b.logger.Error("download logo", "chat_id", chatID, "error", err)
		b.send(chatID, "Error uploading logo. Please try again with a different image.", backToSettings())
		return
	}
	if _, err := b.settings.Update(chatID, func(s *Settings) { s.LogoPath = path }); err != nil {
		b.logger.Error("save logo", "chat_id", chatID, "error", err)
		b.send(chatID, "Error uploading logo. Please try again with a different image.", backToSettings())
		return
	}
	b.sessions.Clear(chatID)
	b.send(chatID, "✅ <b>Logo successfully uploaded!</b>\n\nYour business logo will now appear on all your generated receipts.", settingsSaved())
}

func (b *Bot) downloadLogo(ctx context.Context, fileID, dst string) error {
	url, err := b.api.GetFileDirectURL(fileID)
	if err != nil {
		return fmt.Errorf("resolve file: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := b.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download logo: HTTP %d", resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return err
	}
	tmp := dst + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	n, err := io.Copy(f, io.LimitReader(resp.Body, maxLogoBytes+1))
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err == nil && n > maxLogoBytes {
		err = fmt.Errorf("logo exceeds %d bytes", maxLogoBytes)
	}
	if err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
