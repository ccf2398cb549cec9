package livechat

// Wire types for the continuation endpoint. Only the fields the poller and
// DefaultParser read are modelled; everything else is ignored by encoding/json.

type getLiveChatRequest struct {
	Context      requestContext `json:"context"`
	Continuation string         `json:"continuation"`
}

type requestContext struct {
	Client requestClient `json:"client"`
}

type requestClient struct {
	ClientName    string `json:"clientName"`
	ClientVersion string `json:"clientVersion"`
}

type getLiveChatResponse struct {
	ContinuationContents *struct {
		MessageRenderer      *struct{}             `json:"messageRenderer"`
		LiveChatContinuation *liveChatContinuation `json:"liveChatContinuation"`
	} `json:"continuationContents"`
}

type liveChatContinuation struct {
	Continuations []continuationEntry `json:"continuations"`
	Actions       []Action            `json:"actions"`
}

type continuationEntry struct {
	InvalidationContinuationData *continuationData `json:"invalidationContinuationData"`
	TimedContinuationData        *continuationData `json:"timedContinuationData"`
	ReloadContinuationData       *continuationData `json:"reloadContinuationData"`
}

type continuationData struct {
	Continuation string `json:"continuation"`
	TimeoutMs    int    `json:"timeoutMs"`
}

// next returns the first continuation token carried by the entries, or "".
func (c *liveChatContinuation) next() string {
	for _, e := range c.Continuations {
		for _, d := range []*continuationData{e.InvalidationContinuationData, e.TimedContinuationData, e.ReloadContinuationData} {
			if d != nil && d.Continuation != "" {
				return d.Continuation
			}
		}
	}
	return ""
}

// Action is one server-sent record of an action batch.
type Action struct {
	AddChatItemAction *AddChatItemAction `json:"addChatItemAction,omitempty"`
}

// AddChatItemAction carries a newly posted chat item.
type AddChatItemAction struct {
	Item     ChatItem `json:"item"`
	ClientID string   `json:"clientId,omitempty"`
}

// ChatItem holds exactly one of the renderers.
type ChatItem struct {
	LiveChatTextMessageRenderer    *MessageRenderer `json:"liveChatTextMessageRenderer,omitempty"`
	LiveChatPaidMessageRenderer    *MessageRenderer `json:"liveChatPaidMessageRenderer,omitempty"`
	LiveChatPaidStickerRenderer    *MessageRenderer `json:"liveChatPaidStickerRenderer,omitempty"`
	LiveChatMembershipItemRenderer *MessageRenderer `json:"liveChatMembershipItemRenderer,omitempty"`
}

// MessageRenderer is the union of the fields used by the message renderers.
type MessageRenderer struct {
	ID                      string        `json:"id"`
	TimestampUsec           string        `json:"timestampUsec"`
	AuthorExternalChannelID string        `json:"authorExternalChannelId"`
	AuthorName              *SimpleText   `json:"authorName,omitempty"`
	AuthorPhoto             *Thumbnails   `json:"authorPhoto,omitempty"`
	AuthorBadges            []AuthorBadge `json:"authorBadges,omitempty"`
	Message                 *Runs         `json:"message,omitempty"`
	HeaderSubtext           *Runs         `json:"headerSubtext,omitempty"`

	// Super chat / super sticker fields.
	PurchaseAmountText       *SimpleText `json:"purchaseAmountText,omitempty"`
	HeaderBackgroundColor    int64       `json:"headerBackgroundColor,omitempty"`
	HeaderTextColor          int64       `json:"headerTextColor,omitempty"`
	BodyBackgroundColor      int64       `json:"bodyBackgroundColor,omitempty"`
	BodyTextColor            int64       `json:"bodyTextColor,omitempty"`
	AuthorNameTextColor      int64       `json:"authorNameTextColor,omitempty"`
	MoneyChipBackgroundColor int64       `json:"moneyChipBackgroundColor,omitempty"`
	MoneyChipTextColor       int64       `json:"moneyChipTextColor,omitempty"`
	BackgroundColor          int64       `json:"backgroundColor,omitempty"`
	Sticker                  *Sticker    `json:"sticker,omitempty"`
}

// SimpleText is a plain text node.
type SimpleText struct {
	SimpleText string `json:"simpleText"`
}

// Runs is a rich text node made of text and emoji runs.
type Runs struct {
	Runs []Run `json:"runs"`
}

// Run is one segment of a rich text node.
type Run struct {
	Text  string `json:"text,omitempty"`
	Emoji *Emoji `json:"emoji,omitempty"`
}

// Emoji is a standard or channel custom emoji.
type Emoji struct {
	EmojiID       string     `json:"emojiId"`
	Shortcuts     []string   `json:"shortcuts,omitempty"`
	IsCustomEmoji bool       `json:"isCustomEmoji,omitempty"`
	Image         Thumbnails `json:"image"`
}

// Thumbnails is a list of image variants, smallest first.
type Thumbnails struct {
	Thumbnails []Thumbnail `json:"thumbnails"`
}

// Thumbnail is one image variant.
type Thumbnail struct {
	URL    string `json:"url"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// AuthorBadge wraps a badge renderer.
type AuthorBadge struct {
	LiveChatAuthorBadgeRenderer struct {
		CustomThumbnail *Thumbnails `json:"customThumbnail,omitempty"`
		Icon            *struct {
			IconType string `json:"iconType"`
		} `json:"icon,omitempty"`
		Tooltip string `json:"tooltip"`
	} `json:"liveChatAuthorBadgeRenderer"`
}

// Sticker is the image of a super sticker.
type Sticker struct {
	Thumbnails    []Thumbnail `json:"thumbnails"`
	Accessibility struct {
		AccessibilityData struct {
			Label string `json:"label"`
		} `json:"accessibilityData"`
	} `json:"accessibility"`
}
