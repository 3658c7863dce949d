package plugin

import (
	"fmt"
	"strings"

	"github.com/gen2brain/beeep"
	"github.com/matt0x6f/irc-core/internal/irc"
	"github.com/matt0x6f/irc-core/internal/logger"
	"github.com/matt0x6f/irc-core/internal/proto"
	"github.com/matt0x6f/irc-core/internal/text"
)

// HighlightNotifier raises a desktop notification when a PRIVMSG mentions
// our nick.
type HighlightNotifier struct {
	nick string
}

// NewHighlightNotifier creates a notifier watching for the given nick.
func NewHighlightNotifier(nick string) *HighlightNotifier {
	return &HighlightNotifier{nick: nick}
}

func (n *HighlightNotifier) Name() string { return "highlight-notifier" }

func (n *HighlightNotifier) OnEvent(ev irc.Event) {
	msg, ok := ev.(irc.PrivMsg)
	if !ok {
		return
	}
	body := text.StripFormatting(msg.Text)
	if !strings.Contains(strings.ToLower(body), strings.ToLower(n.nick)) {
		return
	}
	title := fmt.Sprintf("%s in %s", msg.From, msg.Target)
	if err := beeep.Notify(title, body, ""); err != nil {
		logger.Log.Debug().Err(err).Msg("Desktop notification failed")
	}
}

func (n *HighlightNotifier) OnOutgoing(msg *proto.Message) {}
