package livechat

import "time"

// Comment is one chat item rendered into a structured value.
type Comment struct {
	ID           string        `json:"id"`
	Author       Author        `json:"author"`
	Message      []MessagePart `json:"message"`
	SuperChat    *SuperChat    `json:"superchat,omitempty"`
	SuperSticker *SuperSticker `json:"supersticker,omitempty"`
	IsMembership bool          `json:"isMembership"`
	Timestamp    time.Time     `json:"timestamp"`
}

// Text returns the message with emoji replaced by their first shortcut.
func (c Comment) Text() string {
	var out []byte
	for _, p := range c.Message {
		if p.Emoji != nil {
			if len(p.Emoji.Shortcuts) > 0 {
				out = append(out, p.Emoji.Shortcuts[0]...)
			} else {
				out = append(out, p.Emoji.ID...)
			}
			continue
		}
		out = append(out, p.Text...)
	}
	return string(out)
}

// Author describes who posted a comment.
type Author struct {
	Name        string `json:"name"`
	ChannelID   string `json:"channelId"`
	Thumbnail   string `json:"thumbnail,omitempty"`
	Badge       *Badge `json:"badge,omitempty"`
	IsOwner     bool   `json:"isOwner"`
	IsModerator bool   `json:"isModerator"`
	IsVerified  bool   `json:"isVerified"`
	IsMember    bool   `json:"isMembership"`
}

// Badge is a channel membership badge.
type Badge struct {
	Thumbnail string `json:"thumbnail"`
	Label     string `json:"label"`
}

// MessagePart is either plain text or an emoji.
type MessagePart struct {
	Text  string     `json:"text,omitempty"`
	Emoji *EmojiPart `json:"emoji,omitempty"`
}

// EmojiPart is an emoji inside a message.
type EmojiPart struct {
	ID        string   `json:"id"`
	URL       string   `json:"url"`
	Shortcuts []string `json:"shortcuts,omitempty"`
	IsCustom  bool     `json:"isCustomEmoji"`
}

// SuperChat carries the paid-message decoration.
type SuperChat struct {
	Amount          string `json:"amount"`
	Color           string `json:"color"`
	HeaderColor     string `json:"headerColor,omitempty"`
	HeaderTextColor string `json:"headerTextColor,omitempty"`
	BodyTextColor   string `json:"bodyTextColor,omitempty"`
}

// SuperSticker carries a paid sticker.
type SuperSticker struct {
	Amount    string `json:"amount"`
	Color     string `json:"color"`
	Thumbnail string `json:"thumbnail"`
	Label     string `json:"label"`
}
