/*
Package notify delivers pipeline lifecycle notifications to Slack.

The scheduler pins the ts of its start notification and threads all
subsequent messages under it, so one pipeline run reads as one Slack
thread. Status updates are edited in place via chat.update instead of
flooding the thread.

	┌── channel ─────────────────────────────────┐
	│ *PIPELINE JOB STARTED*            ◄─ Send  │
	│ │                                          │
	│ ├ Status update after 1:40:00     ◄─ Send  │
	│ │   (edited in place)             ◄─ Update│
	│ └ ...                                      │
	│ *PIPELINE JOB FINISHED*           ◄─ Send  │
	└────────────────────────────────────────────┘

Transport failures retry with exponential backoff; API-level failures
(invalid_auth, channel_not_found) are permanent. Callers treat every
error as non-fatal: a run never dies because Slack is down.

Messages beyond Slack's 4000 character limit are split at line
boundaries, keeping ``` blocks balanced across chunks.
*/
package notify
