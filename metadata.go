package vault

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"

	"github.com/rbaliyan/mailvault/index"
)

// ExtractMetadata builds a DeletedMessage from a raw RFC 5322 mail. It fills
// the searchable fields (sender, recipients, subject, delivery date,
// attachment flag) from the mail headers and body structure; the caller
// supplies the identity and deletion context.
//
// Malformed mails are tolerated: whatever headers can be parsed are used and
// the rest stay at their zero values, so a broken mail can still be vaulted
// and found by owner and date. Only a completely unreadable stream fails.
//
// Typical use before Append:
//
//	msg, err := vault.ExtractMetadata(raw, vault.MessageContext{
//		MessageID:       id,
//		Owner:           owner,
//		OriginMailboxes: []string{mailboxID},
//		DeletionDate:    time.Now().UTC(),
//	})
//	if err != nil { ... }
//	err = svc.Append(ctx, msg, bytes.NewReader(raw))
func ExtractMetadata(raw []byte, mctx MessageContext) (index.DeletedMessage, error) {
	msg := index.DeletedMessage{
		MessageID:       mctx.MessageID,
		Owner:           mctx.Owner,
		OriginMailboxes: mctx.OriginMailboxes,
		DeletionDate:    mctx.DeletionDate,
		DeliveryDate:    mctx.DeletionDate, // fallback when the mail has no Date header
	}
	if err := msg.Validate(); err != nil {
		return msg, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	reader, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		if reader == nil {
			return msg, fmt.Errorf("%w: unreadable mail: %v", ErrInvalidMessage, err)
		}
		// Header parsed, body structure broken - keep what we have.
	}

	if subject, err := reader.Header.Subject(); err == nil {
		msg.Subject = subject
	}
	if date, err := reader.Header.Date(); err == nil && !date.IsZero() {
		msg.DeliveryDate = date.UTC()
	}
	if fromList, err := reader.Header.AddressList("From"); err == nil && len(fromList) > 0 {
		msg.Sender = normalizeAddress(fromList[0].Address)
	}

	seen := make(map[string]struct{})
	for _, header := range []string{"To", "Cc", "Bcc"} {
		list, err := reader.Header.AddressList(header)
		if err != nil {
			continue
		}
		for _, addr := range list {
			a := normalizeAddress(addr.Address)
			if a == "" {
				continue
			}
			if _, dup := seen[a]; dup {
				continue
			}
			seen[a] = struct{}{}
			msg.Recipients = append(msg.Recipients, a)
		}
	}

	for {
		part, err := reader.NextPart()
		if err != nil {
			break
		}
		if _, ok := part.Header.(*mail.AttachmentHeader); ok {
			msg.HasAttachment = true
			break
		}
	}

	return msg, nil
}

// MessageContext carries the vault-side identity of a mail being appended:
// everything ExtractMetadata cannot learn from the mail bytes themselves.
type MessageContext struct {
	// MessageID identifies the copy within the owner's vault.
	MessageID string
	// Owner is the user whose deletion is being vaulted.
	Owner string
	// OriginMailboxes are the mailbox ids the mail was deleted from.
	OriginMailboxes []string
	// DeletionDate is when the user deleted the mail. Also used as the
	// delivery date fallback for mails without a Date header.
	DeletionDate time.Time
}

func normalizeAddress(addr string) string {
	return strings.TrimSpace(strings.ToLower(addr))
}
