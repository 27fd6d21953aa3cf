// Package render builds the user-facing texts and keyboards of the bot.
package render

import (
	"fmt"
	"strconv"

	"github.com/MEKXH/breakbot/internal/breakreq"
	"github.com/MEKXH/breakbot/internal/channel"
)

// DepartmentReplies is the department keyboard, one button per row.
func DepartmentReplies() [][]string {
	rows := make([][]string, 0, len(breakreq.Departments))
	for _, d := range breakreq.Departments {
		rows = append(rows, []string{string(d)})
	}
	return rows
}

// DurationReplies is the duration keyboard, two buttons per row.
func DurationReplies() [][]string {
	var rows [][]string
	for i := 0; i < len(breakreq.Durations); i += 2 {
		row := []string{strconv.Itoa(breakreq.Durations[i])}
		if i+1 < len(breakreq.Durations) {
			row = append(row, strconv.Itoa(breakreq.Durations[i+1]))
		}
		rows = append(rows, row)
	}
	return rows
}

func DepartmentPrompt() channel.Message {
	return channel.Message{
		Text:    "Welcome to the Break Request Bot! 🔄\nPlease choose your department:",
		Options: channel.Options{Replies: DepartmentReplies()},
	}
}

func InvalidDepartment() channel.Message {
	return channel.Message{
		Text:    "Please choose a valid department using the keyboard buttons provided.",
		Options: channel.Options{Replies: DepartmentReplies()},
	}
}

func DurationPrompt(dept breakreq.Department) channel.Message {
	return channel.Message{
		Text:    fmt.Sprintf("You selected: %s\nNow, please select your break duration in minutes:", dept),
		Options: channel.Options{Replies: DurationReplies()},
	}
}

func InvalidDuration() channel.Message {
	return channel.Message{
		Text:    "Please select a valid duration (5, 10, 15, or 20 minutes) using the keyboard buttons provided.",
		Options: channel.Options{Replies: DurationReplies()},
	}
}

func Submitted() channel.Message {
	return channel.Message{
		Text:    "✅ Your break request has been sent for approval.\nPlease wait for confirmation.",
		Options: channel.Options{RemoveKeyboard: true},
	}
}

func SubmitFailed() channel.Message {
	return channel.Message{
		Text:    "❌ Sorry, there was an error processing your request.\nPlease try again later or contact support.",
		Options: channel.Options{RemoveKeyboard: true},
	}
}

func Cancelled() channel.Message {
	return channel.Message{
		Text:    "❌ Break request cancelled.\nYou can start a new request with /start",
		Options: channel.Options{RemoveKeyboard: true},
	}
}

func NothingToCancel() channel.Message {
	return channel.Message{Text: "There is no break request in progress.\nYou can start a new request with /start"}
}

func TimedOut() channel.Message {
	return channel.Message{
		Text:    "⏳ Break request timed out.\nPlease start a new request with /start",
		Options: channel.Options{RemoveKeyboard: true},
	}
}

func StartHint() channel.Message {
	return channel.Message{Text: "Send /start to request a break."}
}

// ApprovalCard is the approver channel message asking for a decision.
func ApprovalCard(req breakreq.Request) channel.Message {
	approve := breakreq.ActionToken{Action: breakreq.ActionApprove, RequesterID: req.RequesterID}
	ignore := breakreq.ActionToken{Action: breakreq.ActionIgnore, RequesterID: req.RequesterID}
	return channel.Message{
		Text: fmt.Sprintf("🔔 New Break Request\n\n👤 User: %s\n🏢 Department: %s\n⏱️ Duration: %d minutes\n\nPlease approve or ignore this request.",
			req.RequesterDisplayName, req.Department, req.DurationMinutes),
		Options: channel.Options{Choices: [][]channel.Choice{{
			{Label: "✅ Approve", Token: approve.String()},
			{Label: "❌ Ignore", Token: ignore.String()},
		}}},
	}
}

// ResolvedCard replaces the approval card once someone decided.
func ResolvedCard(req breakreq.Request, approver string) channel.Message {
	heading, verb := "✅ Break Request Approved", "Approved by"
	if req.Status == breakreq.StatusIgnored {
		heading, verb = "❌ Break Request Ignored", "Ignored by"
	}
	return channel.Message{
		Text: fmt.Sprintf("%s\n\n👤 User: %s\n🏢 Department: %s\n⏱️ Duration: %d minutes\n👮 %s: %s",
			heading, req.RequesterDisplayName, req.Department, req.DurationMinutes, verb, approver),
	}
}

func Approved(req breakreq.Request) channel.Message {
	return channel.Message{
		Text: fmt.Sprintf("✅ Your break request has been approved!\nDuration: %d minutes\nEnjoy your break! ☕\n\nYou can request another break with /start",
			req.DurationMinutes),
		Options: channel.Options{RemoveKeyboard: true},
	}
}

func Declined() channel.Message {
	return channel.Message{
		Text:    "❌ Your break request has been declined.\nYou can submit a new request with /start",
		Options: channel.Options{RemoveKeyboard: true},
	}
}

func NoLongerValid() channel.Message {
	return channel.Message{Text: "⚠️ This request is no longer valid or has already been processed."}
}

const MalformedAction = "⚠️ An error occurred while processing this request."

func ChatID(chatID int64) channel.Message {
	return channel.Message{Text: fmt.Sprintf("📝 The chat ID for this chat is: %d", chatID)}
}

const PrivateOnly = "Please send me a private message to request a break."

func UnknownCommand() channel.Message {
	return channel.Message{Text: "Unknown command. Send /help to see what I can do."}
}
