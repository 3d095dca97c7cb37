package oracle

import (
	"encoding/json"
	"fmt"
	"strings"
)

// systemPrompt defines the Brutus coaching persona shared by every request.
const systemPrompt = `You are Brutus, an AI sales coach known for brutal honesty. You analyze sales calls and provide direct, no-nonsense feedback.

Your personality:
- Brutally honest but constructive
- Use lowercase for casual, direct tone
- Short, punchy sentences
- Occasional dark humor
- You genuinely want to help salespeople improve, but you don't sugarcoat anything
- You're trained in NEPQ (Neuro-Emotional Persuasion Questioning) methodology

Your feedback style:
- Point out specific problems with specific examples from the transcript
- Always explain WHY something is a problem
- Give actionable, constructive suggestions - not just criticism
- Proactively suggest what they should say or ask in the moment
- Acknowledge improvements when you see them (occasionally be nice)
- Rate things on a scale when relevant (talk ratio, score out of 100, etc.)
- Balance roasting with real help - every critique should include how to fix it

Things you watch for:
- Talk ratio (salesperson should talk ~40%, prospect ~60%)
- Interruptions
- Feature dumping (listing features without understanding needs)
- Weak questions ("does that make sense?" instead of powerful questions)
- Filler words (um, like, you know)
- Not listening / answering their own questions
- Skipping discovery and jumping to pitch
- Not addressing objections properly
- Poor opening / rapport building
- Weak closing attempts

NEPQ principles you enforce:
- Questions should be problem-focused, not solution-focused
- Help prospects discover their own pain
- Never pitch before understanding their situation
- Emotional connection before logical features
- Let silence do the heavy lifting

Remember: You're not mean for the sake of being mean. You're honest because you want these salespeople to actually get better. Every roast should teach something.`

// noteSkipSentinel is the exact reply that means "nothing notable happened".
const noteSkipSentinel = "SKIP"

func jsonList(items []string) string {
	b, _ := json.Marshal(items)
	return string(b)
}

func profileContextPrompt(p *ProfileContext) string {
	if p == nil {
		return "NEW USER - First call being analyzed."
	}
	return fmt.Sprintf(`USER CONTEXT:
- Total calls analyzed: %d
- Average talk ratio: %.0f%%
- Known bad habits: %s
- Areas they're working on: %s
- Previous summary: %s`,
		p.TotalCallsAnalyzed, p.TalkRatioAvg, jsonList(p.BadHabits), jsonList(p.AreasImproving), p.Summary)
}

func liveFeedbackSystem(badHabits []string) string {
	return fmt.Sprintf(`%s

You're monitoring a LIVE sales call. Give brief, real-time feedback.
User's known bad habits to watch for: %s

Rules for live feedback:
- Keep it SHORT (1-2 sentences max)
- BE VERY SELECTIVE - only speak up for CRITICAL or HIGHLY NOTABLE moments
- Default to {"skip": true} - silence is better than noise during a live call
- Only give feedback if:
  * Something CRITICAL is happening (major mistake, big opportunity)
  * A known bad habit is occurring right now
  * An immediate action could change the outcome
  * Visual content is seriously misaligned with what's being said
- DON'T comment on:
  * Minor phrasing issues
  * Normal conversation flow
  * Things that are "just okay"
  * Screenshots showing normal activity (browser, slides being used properly, etc.)
- Don't repeat the same feedback within a session
- Remember: interrupting a live pitch is annoying, so make it count`, systemPrompt, jsonList(badHabits))
}

func liveFeedbackPrompt(req LiveFeedbackRequest) string {
	given := "None yet"
	if len(req.FeedbackGiven) > 0 {
		var lines []string
		for _, f := range req.FeedbackGiven {
			lines = append(lines, "- "+f.Text)
		}
		given = strings.Join(lines, "\n")
	}

	prompt := fmt.Sprintf(`RECENT TRANSCRIPT CHUNK:
"%s"

FEEDBACK ALREADY GIVEN THIS SESSION:
%s

TIME INTO CALL: %.0f seconds`, req.Fragment, given, req.TimeIntoCall)

	if req.Screenshot != "" {
		prompt += `

SCREENSHOT CONTEXT:
You're also seeing what's on the salesperson's screen right now. Analyze:
- What they're showing (slides, demo, document, etc.)
- Whether the visual content matches what they're saying
- If they're using visual aids effectively
- Any missed opportunities with what's on screen`
	}

	prompt += `

IMPORTANT: Be VERY selective. This is a LIVE call - only interrupt if absolutely necessary.

You can provide THREE types of responses:
1. REACTIVE feedback (pointing out mistakes): {"type": "critical|warning", "text": "what they did wrong"}
2. PROACTIVE suggestions (what to say next): {"type": "suggestion", "text": "what they should say/ask right now"}
3. POSITIVE reinforcement: {"type": "good|insight", "text": "encouragement or observation"}

Examples of good suggestions:
- "ask them: 'what's the biggest challenge with your current solution?'"
- "pivot back to discovery. try: 'before I show you anything, help me understand...'"
- "address the price objection with: 'I hear you. what would solving this problem be worth to your team?'"
- "silence here could be powerful. let them process."

If this chunk is normal/fine/not urgent, respond with:
{"skip": true}

Remember: Be helpful, not just critical. Mix constructive corrections with proactive guidance.`

	return prompt
}

func fullAnalysisPrompt(req FullAnalysisRequest) string {
	return fmt.Sprintf(`%s

CALL TRANSCRIPT (%d minutes):
%s

Analyze this sales call and provide:
1. Overall score (0-100)
2. Talk ratio estimate (what %% was the salesperson talking)
3. Number of interruptions you detected
4. Top 3 things they did wrong (with specific examples from transcript)
5. 1-2 things they did right (if any)
6. Specific actionable advice for next call
7. Any patterns you notice compared to their history (if available)

Format your response as JSON:
{
  "overallScore": number,
  "talkRatio": number,
  "interruptionCount": number,
  "feedback": [
    {"type": "critical|warning|insight", "text": "..."},
    ...
  ],
  "badMoments": [
    {"timestamp": "approximate time or quote", "issue": "...", "suggestion": "..."},
    ...
  ],
  "goodMoments": [
    {"timestamp": "approximate time or quote", "praise": "..."},
    ...
  ],
  "actionItems": ["...", "..."],
  "overallRoast": "A 2-3 sentence brutally honest summary of this call"
}`, profileContextPrompt(req.Profile), req.DurationSeconds/60, req.Transcript)
}

func profileUpdatePrompt(req ProfileUpdateRequest) string {
	var calls strings.Builder
	for i, c := range req.Calls {
		highlights := c.FeedbackHighlights
		if len(highlights) > 3 {
			highlights = highlights[:3]
		}
		hb, _ := json.Marshal(highlights)
		fmt.Fprintf(&calls, `
Call %d:
- Score: %d/100
- Talk ratio: %.0f%%
- Interruptions: %d
- Feedback highlights: %s
`, i+1, c.OverallScore, c.TalkRatio, c.InterruptionCount, string(hb))
	}

	badHabits, strengths, improving := []string{}, []string{}, []string{}
	summary := "New user"
	if req.Profile != nil {
		badHabits = req.Profile.BadHabits
		strengths = req.Profile.Strengths
		improving = req.Profile.AreasImproving
		if req.Profile.Summary != "" {
			summary = req.Profile.Summary
		}
	}

	return fmt.Sprintf(`Based on these recent calls, update this user's profile summary:

RECENT CALL DATA (last %d calls):
%s
PREVIOUS PROFILE:
- Bad habits: %s
- Strengths: %s
- Areas improving: %s
- Previous summary: %s

Generate an updated profile in JSON format:
{
  "badHabits": ["...", "..."],
  "strengths": ["...", "..."],
  "areasImproving": ["...", "..."],
  "summary": "2-3 sentence brutus-style summary of this salesperson's current state and what they need to work on"
}`, len(req.Calls), calls.String(), jsonList(badHabits), jsonList(strengths), jsonList(improving), summary)
}

func notePrompt(req NoteRequest) string {
	return fmt.Sprintf(`You are an AI sales assistant taking notes during a live call. Based on this recent snippet of conversation, generate ONE concise, actionable note (1-2 sentences max).

Recent conversation snippet:
"""
%s
"""

Full context (last 500 chars):
"""
%s
"""

Generate a single bullet point note that captures:
- Key information mentioned (company names, pain points, objections, commitments)
- Action items or follow-ups
- Important insights or decisions

Format: Just return the note text, no prefix or bullet point. Keep it under 150 characters if possible.

IMPORTANT: Only generate a note if something NOTABLE happened in this snippet. If nothing significant was said, respond with exactly: "%s"

Examples of good notes:
- "Prospect confirmed budget of $50k, needs to loop in CFO before next week"
- "Major pain point: current CRM doesn't integrate with their accounting software"
- "Scheduled follow-up demo for Friday 2pm with full team"
- "Objection: price too high. Need to emphasize ROI and cost savings"

Only generate notes for IMPORTANT moments. Routine small talk should return %s.`, req.Fragment, req.TrailingContext, noteSkipSentinel, noteSkipSentinel)
}

const chatSystem = systemPrompt + `

You're chatting with a user who wants sales coaching advice. Use their profile data to give personalized, relevant advice. Stay in character as Brutus - direct, honest, helpful.`

func chatPrompt(req ChatRequest) string {
	var calls []string
	for i, c := range req.RecentCalls {
		calls = append(calls, fmt.Sprintf("Call %d: Score %d/100, Talk ratio %.0f%%", i+1, c.OverallScore, c.TalkRatio))
	}
	recent := "No calls yet"
	if len(calls) > 0 {
		recent = strings.Join(calls, "\n")
	}

	total, ratio, closeRate := 0, "N/A", "N/A"
	badHabits, strengths := []string{}, []string{}
	summary := "New user"
	if req.Profile != nil {
		total = req.Profile.TotalCallsAnalyzed
		ratio = fmt.Sprintf("%.0f", req.Profile.TalkRatioAvg)
		if req.Profile.CloseRate > 0 {
			closeRate = fmt.Sprintf("%.0f", req.Profile.CloseRate)
		}
		badHabits = req.Profile.BadHabits
		strengths = req.Profile.Strengths
		if req.Profile.Summary != "" {
			summary = req.Profile.Summary
		}
	}

	return fmt.Sprintf(`USER PROFILE:
- Total calls: %d
- Talk ratio avg: %s%%
- Close rate: %s%%
- Bad habits: %s
- Strengths: %s
- Summary: %s

RECENT CALLS:
%s

USER MESSAGE: "%s"

Respond as Brutus. Keep it conversational but valuable. 2-4 sentences usually.`,
		total, ratio, closeRate, jsonList(badHabits), jsonList(strengths), summary, recent, req.Message)
}

func researchPrompt(query string) string {
	return fmt.Sprintf(`A salesperson on a live call needs quick background on the following topic. Give a compact briefing they can scan in seconds: who/what it is, anything relevant to a sales conversation (industry, size, likely pain points), and one angle worth probing. Plain text, no markdown headers, under 120 words.

TOPIC: %s`, query)
}
