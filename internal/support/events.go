// Package support wires Threadline's fixed background-work catalogs: the
// event fan-out table, the recurring schedule catalog, and the job handler
// registry. The catalogs are static per build; application code reaches the
// subsystem only through the trigger and queue APIs.
package support

import (
	"github.com/threadline/threadline/work/event"
)

// Event names exposed to the application layer.
const (
	EventMessageCreated       = "conversations/message.created"
	EventConversationCreated  = "conversations/conversation.created"
	EventConversationResolved = "conversations/conversation.resolved"
	EventCustomerCreated      = "customers/customer.created"
	EventCustomerMerged       = "customers/customer.merged"
)

// Job types known to the handler registry.
const (
	JobIndexMessage       = "search.index-message"
	JobUpdateEmbedding    = "embeddings.update-message"
	JobDetectDuplicate    = "conversations.detect-duplicate"
	JobRealtimePush       = "notifications.realtime-push"
	JobVIPAlert           = "notifications.vip-alert"
	JobCategorize         = "conversations.categorize"
	JobIndexConversation  = "search.index-conversation"
	JobAutoAssign         = "conversations.auto-assign"
	JobSatisfactionSurvey = "notifications.satisfaction-survey"
	JobIndexCustomer      = "search.index-customer"
	JobMergeCustomerData  = "customers.merge-data"
	JobSLASweep           = "sla.sweep"
	JobCleanupJobs        = "maintenance.cleanup-jobs"
	JobDailyDigest        = "reports.daily-digest"
	JobWeeklyReport       = "reports.generate-weekly"
	JobArticleRenewal     = "knowledge.renew-articles"
)

// Events returns the full event fan-out table.
func Events() []event.Definition {
	return []event.Definition{
		{
			// A new inbound message fans out into six independent jobs;
			// each succeeds or fails on its own.
			Name: EventMessageCreated,
			Schema: event.Schema{
				"messageId":      {Kind: event.KindNumber, Required: true},
				"conversationId": {Kind: event.KindNumber},
				"channel":        {Kind: event.KindString},
			},
			JobTypes: []string{
				JobIndexMessage,
				JobUpdateEmbedding,
				JobDetectDuplicate,
				JobRealtimePush,
				JobVIPAlert,
				JobCategorize,
			},
		},
		{
			Name: EventConversationCreated,
			Schema: event.Schema{
				"conversationId": {Kind: event.KindNumber, Required: true},
				"customerId":     {Kind: event.KindNumber},
			},
			JobTypes: []string{
				JobIndexConversation,
				JobAutoAssign,
			},
		},
		{
			Name: EventConversationResolved,
			Schema: event.Schema{
				"conversationId": {Kind: event.KindNumber, Required: true},
			},
			JobTypes: []string{
				JobIndexConversation,
				JobSatisfactionSurvey,
			},
		},
		{
			Name: EventCustomerCreated,
			Schema: event.Schema{
				"customerId": {Kind: event.KindNumber, Required: true},
			},
			JobTypes: []string{
				JobIndexCustomer,
			},
		},
		{
			Name: EventCustomerMerged,
			Schema: event.Schema{
				"customerId": {Kind: event.KindNumber, Required: true},
				"mergedIds":  {Kind: event.KindArray, Required: true},
			},
			JobTypes: []string{
				JobMergeCustomerData,
				JobIndexCustomer,
			},
		},
	}
}

// RegisterEvents loads the catalog into a trigger. Called exactly once per
// process start.
func RegisterEvents(t *event.Trigger) {
	for _, def := range Events() {
		t.Register(def)
	}
}
