package livechat

import (
	"fmt"
	"strconv"
	"time"
)

// Parser turns raw actions into comments. Renderer returns nil for actions
// that are not chat comments; Comment is only called for actions whose
// Renderer is non-nil.
type Parser interface {
	Renderer(a Action) *MessageRenderer
	Comment(a Action) Comment
}

// DefaultParser understands text messages, super chats, super stickers and
// membership items.
type DefaultParser struct{}

// Renderer returns the message renderer carried by an addChatItemAction, if any.
func (DefaultParser) Renderer(a Action) *MessageRenderer {
	if a.AddChatItemAction == nil {
		return nil
	}
	item := a.AddChatItemAction.Item
	switch {
	case item.LiveChatTextMessageRenderer != nil:
		return item.LiveChatTextMessageRenderer
	case item.LiveChatPaidMessageRenderer != nil:
		return item.LiveChatPaidMessageRenderer
	case item.LiveChatPaidStickerRenderer != nil:
		return item.LiveChatPaidStickerRenderer
	case item.LiveChatMembershipItemRenderer != nil:
		return item.LiveChatMembershipItemRenderer
	}
	return nil
}

// Comment renders an action into a Comment. Actions without a renderer yield the zero Comment.
func (p DefaultParser) Comment(a Action) Comment {
	r := p.Renderer(a)
	if r == nil {
		return Comment{}
	}
	c := Comment{
		ID:        r.ID,
		Timestamp: UsecToTime(r.TimestampUsec),
		Author: Author{
			ChannelID: r.AuthorExternalChannelID,
		},
	}
	if r.AuthorName != nil {
		c.Author.Name = r.AuthorName.SimpleText
	}
	if r.AuthorPhoto != nil {
		c.Author.Thumbnail = lastURL(r.AuthorPhoto.Thumbnails)
	}
	for _, b := range r.AuthorBadges {
		br := b.LiveChatAuthorBadgeRenderer
		if br.CustomThumbnail != nil {
			c.Author.IsMember = true
			c.Author.Badge = &Badge{Thumbnail: lastURL(br.CustomThumbnail.Thumbnails), Label: br.Tooltip}
			continue
		}
		if br.Icon == nil {
			continue
		}
		switch br.Icon.IconType {
		case "OWNER":
			c.Author.IsOwner = true
		case "MODERATOR":
			c.Author.IsModerator = true
		case "VERIFIED":
			c.Author.IsVerified = true
		}
	}

	switch {
	case r.Message != nil:
		c.Message = parseRuns(r.Message.Runs)
	case r.HeaderSubtext != nil:
		c.Message = parseRuns(r.HeaderSubtext.Runs)
	}

	item := a.AddChatItemAction.Item
	switch {
	case item.LiveChatPaidMessageRenderer != nil:
		c.SuperChat = &SuperChat{
			Amount:          simpleText(r.PurchaseAmountText),
			Color:           argbToHex(r.BodyBackgroundColor),
			HeaderColor:     argbToHex(r.HeaderBackgroundColor),
			HeaderTextColor: argbToHex(r.HeaderTextColor),
			BodyTextColor:   argbToHex(r.BodyTextColor),
		}
	case item.LiveChatPaidStickerRenderer != nil:
		s := &SuperSticker{
			Amount: simpleText(r.PurchaseAmountText),
			Color:  argbToHex(r.BackgroundColor),
		}
		if r.Sticker != nil {
			s.Thumbnail = lastURL(r.Sticker.Thumbnails)
			s.Label = r.Sticker.Accessibility.AccessibilityData.Label
		}
		c.SuperSticker = s
	case item.LiveChatMembershipItemRenderer != nil:
		c.IsMembership = true
	}
	return c
}

// UsecToTime converts a decimal microsecond timestamp. Invalid input yields the zero time.
func UsecToTime(usec string) time.Time {
	n, err := strconv.ParseInt(usec, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMicro(n)
}

func parseRuns(runs []Run) []MessagePart {
	out := make([]MessagePart, 0, len(runs))
	for _, r := range runs {
		if r.Emoji != nil {
			out = append(out, MessagePart{Emoji: &EmojiPart{
				ID:        r.Emoji.EmojiID,
				URL:       lastURL(r.Emoji.Image.Thumbnails),
				Shortcuts: r.Emoji.Shortcuts,
				IsCustom:  r.Emoji.IsCustomEmoji,
			}})
			continue
		}
		out = append(out, MessagePart{Text: r.Text})
	}
	return out
}

func simpleText(t *SimpleText) string {
	if t == nil {
		return ""
	}
	return t.SimpleText
}

// lastURL picks the largest thumbnail.
func lastURL(ts []Thumbnail) string {
	if len(ts) == 0 {
		return ""
	}
	return ts[len(ts)-1].URL
}

// argbToHex drops the alpha channel of an ARGB color.
func argbToHex(c int64) string {
	if c == 0 {
		return ""
	}
	return fmt.Sprintf("#%06x", c&0xffffff)
}
