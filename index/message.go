package index

import "time"

// DeletedMessage is one historical copy of a deleted mail, as recorded in the
// metadata index. The same message id may coexist for different owners (e.g.
// several recipients deleted the same mail); each copy is independent.
//
// Sender and Subject are optional; an empty value means the original mail
// carried none. OriginMailboxes and Recipients are sets - order is not
// significant and is not preserved by the index.
type DeletedMessage struct {
	// MessageID is unique within the scope of a single Owner.
	MessageID string `json:"message_id" bson:"message_id" db:"message_id"`

	// Owner is the tenant/user the copy belongs to.
	Owner string `json:"owner" bson:"owner" db:"owner"`

	// OriginMailboxes are the mailbox ids the message used to belong to.
	OriginMailboxes []string `json:"origin_mailboxes" bson:"origin_mailboxes" db:"origin_mailboxes"`

	// Sender is the envelope sender address, empty if unknown.
	Sender string `json:"sender,omitempty" bson:"sender,omitempty" db:"sender"`

	// Recipients are the envelope recipient addresses, possibly empty.
	Recipients []string `json:"recipients" bson:"recipients" db:"recipients"`

	// HasAttachment reports whether the original mail carried attachments.
	HasAttachment bool `json:"has_attachment" bson:"has_attachment" db:"has_attachment"`

	// Subject is the mail subject, empty if the mail had none.
	Subject string `json:"subject,omitempty" bson:"subject,omitempty" db:"subject"`

	// DeliveryDate is when the mail was originally received.
	DeliveryDate time.Time `json:"delivery_date" bson:"delivery_date" db:"delivery_date"`

	// DeletionDate is when the user deleted the mail. It determines the
	// retention bucket the copy is filed under.
	DeletionDate time.Time `json:"deletion_date" bson:"deletion_date" db:"deletion_date"`
}

// Validate reports whether the message carries the identifiers every index
// write requires.
func (m DeletedMessage) Validate() error {
	if m.MessageID == "" || m.Owner == "" {
		return ErrInvalidID
	}
	return nil
}

// InOriginMailbox reports whether mailboxID is one of the mailboxes the
// message was deleted from.
func (m DeletedMessage) InOriginMailbox(mailboxID string) bool {
	for _, id := range m.OriginMailboxes {
		if id == mailboxID {
			return true
		}
	}
	return false
}

// HasRecipient reports whether addr is one of the message's recipients.
func (m DeletedMessage) HasRecipient(addr string) bool {
	for _, r := range m.Recipients {
		if r == addr {
			return true
		}
	}
	return false
}
