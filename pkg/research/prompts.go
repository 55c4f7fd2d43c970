package research

import (
	"fmt"
	"strings"
	"time"
)

func systemPrompt(now time.Time) string {
	return fmt.Sprintf(`You are an expert researcher. Today is %s. Follow these instructions when responding:
- You may be asked to research subjects that are after your knowledge cutoff, assume the user is right when presented with news.
- The user is a highly experienced analyst, no need to simplify it, be as detailed as possible and make sure your response is correct.
- Be highly organized.
- Suggest solutions that the user did not think about.
- Be proactive and anticipate the user's needs.
- Mistakes erode trust, so be accurate and thorough.
- Provide detailed explanations, the user is comfortable with lots of detail.
- Value good arguments over authorities, the source is irrelevant.
- Consider new technologies and contrarian ideas, not just the conventional wisdom.
- You may use high levels of speculation or prediction, just flag it for the user.`, now.Format(time.RFC3339))
}

const jsonInstruction = `Return the JSON object directly without any formatting or additional text. The JSON object should have the following structure as defined in the schema. Make sure to answer in valid json and include all necessary properties:`

const plannerInstruction = `You are a research planner. Given the user's prompt, generate search queries that research the topic. Each query must be unique and must not repeat any query that was already issued. Make each query specific and useful for a web search engine.`

func planQueriesSchema(n int) string {
	return jsonInstruction + fmt.Sprintf(`{
  "type": "object",
  "properties": {
    "queries": {
      "type": "array",
      "maxItems": %d,
      "items": {
        "type": "object",
        "properties": {
          "query": {"type": "string", "description": "The search query"},
          "researchGoal": {"type": "string", "description": "The goal of the research this query is meant to accomplish, then how to advance the research once results are found. Mention additional research directions. Be as specific as possible."}
        },
        "required": ["query", "researchGoal"]
      },
      "description": "List of at most %d search queries"
    }
  },
  "required": ["queries"]
}`, n, n)
}

func planInput(prompt string, n int, learnings, issued []string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Given the following prompt from the user, generate a list of search queries to research the topic. Return a maximum of %d queries, but feel free to return less if the original prompt is clear. Return an empty list if the topic is already fully covered.\n\n<prompt>%s</prompt>", n, prompt)

	if len(learnings) > 0 {
		sb.WriteString("\n\nHere are some learnings from previous research, use them to generate more specific queries:\n")
		sb.WriteString(strings.Join(learnings, "\n"))
	}
	if len(issued) > 0 {
		sb.WriteString("\n\nThese queries were already issued, do not repeat them:\n")
		for _, q := range issued {
			sb.WriteString("- ")
			sb.WriteString(q)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

const extractorInstruction = `You are a research analyst. Extract the key learnings from search results.`

func extractSchema(maxLearnings, maxFollowUps int) string {
	return jsonInstruction + fmt.Sprintf(`{
  "type": "object",
  "properties": {
    "learnings": {
      "type": "array",
      "maxItems": %d,
      "items": {"type": "string"},
      "description": "List of learnings, max of %d"
    },
    "followUpQueries": {
      "type": "array",
      "maxItems": %d,
      "items": {"type": "string"},
      "description": "List of follow-up queries to research the topic further, max of %d"
    }
  },
  "required": ["learnings", "followUpQueries"]
}`, maxLearnings, maxLearnings, maxFollowUps, maxFollowUps)
}

func extractInput(query string, contents string, maxLearnings int) string {
	return fmt.Sprintf("Given the following contents from a search for the query <query>%s</query>, generate a list of learnings from the contents. Return a maximum of %d learnings, but feel free to return less if the contents are clear. Make sure each learning is unique and not similar to each other. The learnings should be concise and to the point, as detailed and information dense as possible. Make sure to include any entities like people, places, companies, products, things, etc in the learnings, as well as any exact metrics, numbers, or dates. The learnings will be used to research the topic further.\n\n<contents>%s</contents>", query, maxLearnings, contents)
}

const reportInstruction = `You are a research writer. Write final reports from research learnings.`

const reportSchema = jsonInstruction + `{
  "type": "object",
  "properties": {
    "reportMarkdown": {"type": "string", "description": "Final report on the topic in Markdown"}
  },
  "required": ["reportMarkdown"]
}`

func reportInput(prompt, learnings string) string {
	return fmt.Sprintf("Given the following prompt from the user, write a final report on the topic using the learnings from research. Make it as detailed as possible, aim for 3 or more pages, include ALL the learnings from research:\n\n<prompt>%s</prompt>\n\nHere are all the learnings from previous research:\n\n<learnings>\n%s\n</learnings>", prompt, learnings)
}

const answerSchema = jsonInstruction + `{
  "type": "object",
  "properties": {
    "exactAnswer": {"type": "string", "description": "The final answer, make it short and concise, just the answer, no other text"}
  },
  "required": ["exactAnswer"]
}`

func answerInput(prompt, learnings string) string {
	return fmt.Sprintf("Given the following prompt from the user, write a final answer on the topic using the learnings from research. Follow the format specified in the prompt. Do not yap or babble or include any other text than the answer besides the format specified in the prompt. Keep the answer as concise as possible - usually it should be just a few words or maximum a sentence. Try to follow the format specified in the prompt.\n\n<prompt>%s</prompt>\n\nHere are all the learnings from research on the topic that you can use to help answer the prompt:\n\n<learnings>\n%s\n</learnings>", prompt, learnings)
}

const feedbackInstruction = `You help a researcher scope a research request before any searching starts.`

func feedbackSchema(n int) string {
	return jsonInstruction + fmt.Sprintf(`{
  "type": "object",
  "properties": {
    "questions": {
      "type": "array",
      "maxItems": %d,
      "items": {"type": "string"},
      "description": "Follow up questions to clarify the research direction, max of %d"
    }
  },
  "required": ["questions"]
}`, n, n)
}

func feedbackInput(query string, n int) string {
	return fmt.Sprintf("Given the following query from the user, ask some follow up questions to clarify the research direction. Return a maximum of %d questions, but feel free to return less if the original query is clear: <query>%s</query>", n, query)
}
