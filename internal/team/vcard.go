package team

import (
	"context"
	"fmt"
	"io"

	"github.com/emersion/go-vcard"
)

// MemberCard converts a directory entry to a vCard 4.0 card.
func MemberCard(m Member) vcard.Card {
	card := make(vcard.Card)
	card.SetValue(vcard.FieldUID, "urn:uuid:"+m.ID)
	card.SetValue(vcard.FieldFormattedName, m.Name)
	card.SetValue(vcard.FieldEmail, m.Email)
	card.SetValue(vcard.FieldRole, m.Role)
	card.SetKind(vcard.KindIndividual)
	card.SetValue(vcard.FieldNote, "TaskFlow team member ("+m.Status+")")
	vcard.ToV4(card)
	return card
}

// ExportVCards writes every member as a vCard to w.
func (d *Directory) ExportVCards(ctx context.Context, w io.Writer) (int, error) {
	members, err := d.Members(ctx)
	if err != nil {
		return 0, err
	}
	enc := vcard.NewEncoder(w)
	for _, m := range members {
		if err := enc.Encode(MemberCard(m)); err != nil {
			return 0, fmt.Errorf("encode vcard for %s: %w", m.Email, err)
		}
	}
	return len(members), nil
}
