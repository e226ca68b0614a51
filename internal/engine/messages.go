package engine

import (
	"fmt"

	"github.com/VivekReddy2001/telegram-quiz-bot-render/internal/telegram"
)

// Conversation copy. The texts are opaque blobs as far as the core is
// concerned; they are produced here and handed to the delivery layer as-is.

const welcomeMessage = `🎯 *Simple Quiz Bot* ⚡

✨ Create MCQ quizzes instantly!

💡 *Rules:*
• ` + "`q`" + ` = question, ` + "`o`" + ` = options, ` + "`c`" + ` = correct, ` + "`e`" + ` = explanation
• ` + "`c`" + ` starts from 0 (0=A, 1=B, 2=C, 3=D)
• 2-4 options allowed per question
• Keep short to fit Telegram limits

🚀 *Fast • Reliable • Professional* 🎓`

const templateJSON = `{"all_q":[{"q":"Capital of France? 🇫🇷","o":["London","Paris","Berlin","Madrid"],"c":1,"e":"Paris is the capital and largest city of France 🗼"},{"q":"What is 2+2? 🔢","o":["3","4","5","6"],"c":1,"e":"Basic addition: 2+2=4 ✅"}]}`

const styleChooserMessage = `🎭 *Choose Your Quiz Style:*

🔒 *Anonymous Quiz:*
✅ Can forward to channels and groups
✅ Voters remain private
✅ Perfect for public sharing

👤 *Non-Anonymous Quiz:*
✅ Shows who answered each question
✅ Great for tracking participation
❌ Cannot be forwarded to channels

*Which style do you prefer?* 👇✨`

const helpMessage = `🆘 *Quiz Bot Help* 📚

🤖 *Commands:*
• /start ⭐ - Begin quiz creation
• /quickstart ⚡ - Quick 5-step guide
• /template 📋 - Get JSON template
• /help 🆘 - Show this help
• /status 📊 - Check settings
• /toggle 🔄 - Switch quiz types

📚 *JSON Format:*
• ` + "`all_q`" + ` 📝 - Questions array
• ` + "`q`" + ` ❓ - Question text
• ` + "`o`" + ` 📝 - Answer options (2-4 choices)
• ` + "`c`" + ` ✅ - Correct answer (0=A, 1=B, 2=C, 3=D)
• ` + "`e`" + ` 💡 - Explanation (optional)

💡 *Pro Tip:* Use /quickstart for fastest setup! 🚀`

const quickstartMessage = `⚡ *Quick Start Guide:* 🚀

1️⃣ Use /template to get the 4-option JSON format 📋
2️⃣ Copy template → Give to AI (ChatGPT) 🤖
3️⃣ Ask AI: "Customize with my questions in this format" 💭
4️⃣ Send customized JSON to me 📤
5️⃣ Get instant interactive quizzes! 🎯✨

*Need help?* Use /help for the detailed guide 📚`

const templateLeadMessage = `📋 *4-Option JSON Template:* 🎯`

const templateFollowupMessage = `💡 *Copy above template → Give to ChatGPT → Ask to customize with your questions!* 🤖✨`

const processingMessage = `🔄 *Processing your quiz JSON...* ⚡🎯`

const redirectMessage = `🔄 *Let's start properly!* ✨`

const restartMessage = `🎉 *Ready for another quiz?* ✨`

const invalidJSONMessage = `❌ *Invalid JSON Format!* 📋

🔄 *Let's restart with proper format...* ✨`

const noQuestionsMessage = `❌ *No questions found!* 🔍

🔄 *Let's restart with proper format...* 📋`

func greetingMessage(firstName string) string {
	if firstName == "" {
		firstName = "Friend"
	}
	return fmt.Sprintf("👋 Hello *%s*! 🌟\n\n%s", firstName, welcomeMessage)
}

func quizTypeLabel(anonymous bool) string {
	if anonymous {
		return "🔒 Anonymous"
	}
	return "👤 Non-Anonymous"
}

func styleSelectedMessage(anonymous bool) string {
	return fmt.Sprintf("✅ *%s Quiz Selected!* 🎉\n\n⏭️ *Next:* JSON template coming... ⚡", quizTypeLabel(anonymous))
}

func instructionsMessage(anonymous bool) string {
	return fmt.Sprintf(`✅ *%s Quiz Selected!* 🎉

📝 *Next Steps:*
1️⃣ Copy the above JSON template
2️⃣ Give it to ChatGPT/AI 🤖
3️⃣ Ask to customize with your questions in our format

🚀 *Then send me your customized JSON:* 👇⚡`, quizTypeLabel(anonymous))
}

func validationErrorMessage(detail string) string {
	return fmt.Sprintf("❌ *%s* 📝\n\n🔄 *Restarting...* 🔄", detail)
}

func validatedMessage(count int, anonymous bool) string {
	kind := "anonymous"
	if !anonymous {
		kind = "non-anonymous"
	}
	return fmt.Sprintf("✅ *%d questions validated!* 🎯\n🚀 Sending %s polls... ⚡", count, kind)
}

func completionMessage(sent int, anonymous bool) string {
	return fmt.Sprintf("🎯 *%d %s quizzes sent successfully!* ✅🎉", sent, quizTypeLabel(anonymous))
}

func partialSuccessMessage(sent, total int) string {
	return fmt.Sprintf("⚠️ *Partial Success:* %d/%d questions sent 📊\n\n🔄 *Restarting...* 🔄", sent, total)
}

func statusMessage(firstName string, chatID int64, anonymous bool, activeSessions int) string {
	if firstName == "" {
		firstName = "User"
	}
	emoji := "🟢"
	note := "🔐 Perfect for channels & forwarding 📡"
	if !anonymous {
		emoji = "🔵"
		note = "👁️ Shows voter participation 📊"
	}
	return fmt.Sprintf(`%s *Bot Status: Active & Ready!* ⚡

👤 *User:* %s 🌟
📍 *Chat ID:* `+"`%d`"+` 🔢
🎯 *Quiz Type:* %s 🎭
%s
📊 *Active Users:* %d 👥

🚀 *Ready to create amazing quizzes!* ✨`, emoji, firstName, chatID, quizTypeLabel(anonymous), note, activeSessions)
}

func toggleMessage(anonymous bool) string {
	return fmt.Sprintf("⚙️ *Current Setting:* %s 📊\n\n🔄 *Quick Toggle:* Choose your preferred quiz type: 👇✨", quizTypeLabel(anonymous))
}

func styleChooserKeyboard() *telegram.InlineKeyboardMarkup {
	return &telegram.InlineKeyboardMarkup{
		InlineKeyboard: [][]telegram.InlineKeyboardButton{
			{{Text: "🔒 Anonymous Quiz (Can forward to channels)", CallbackData: "anonymous_true"}},
			{{Text: "👤 Non-Anonymous Quiz (Shows who voted)", CallbackData: "anonymous_false"}},
		},
	}
}

func toggleKeyboard() *telegram.InlineKeyboardMarkup {
	return &telegram.InlineKeyboardMarkup{
		InlineKeyboard: [][]telegram.InlineKeyboardButton{
			{{Text: "🔒 Switch to Anonymous", CallbackData: "anonymous_true"}},
			{{Text: "👤 Switch to Non-Anonymous", CallbackData: "anonymous_false"}},
		},
	}
}
