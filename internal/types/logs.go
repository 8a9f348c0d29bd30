package types

// Log action names. Every structured log line carries one of these in the
// "action" attribute so runs can be filtered without parsing messages.
const (
	ActionServiceStarted   = "service_started"
	ActionServiceFailed    = "service_failed"
	ActionGracefulShutdown = "graceful_shutdown"
	ActionConfigLoaded     = "config_loaded"

	ActionStoreConnected     = "store_connected"
	ActionStoreConnectFailed = "store_connect_failed"
	ActionStoreSeeded        = "store_seeded"

	// Reconciliation pass
	ActionReconcileStarted     = "reconcile_started"
	ActionReconcileCompleted   = "reconcile_completed"
	ActionReconcileRejected    = "reconcile_rejected"
	ActionCollectionReadFailed = "collection_read_failed"
	ActionOrderPending         = "order_pending"
	ActionOrderAutoCompleted   = "order_auto_completed"
	ActionOrderWithheld        = "order_withheld"
	ActionOrderRepaired        = "order_repaired"
	ActionOrderWriteFailed     = "order_write_failed"
	ActionOrderMissingEntry    = "order_missing_entry"
	ActionOrderMalformed       = "order_malformed"
	ActionGateReadFailed       = "gate_read_failed"

	// Statistics
	ActionStatisticsFailed = "statistics_failed"

	// Scheduler
	ActionSchedulerStarted = "scheduler_started"
	ActionSchedulerTick    = "scheduler_tick"
	ActionSchedulerStopped = "scheduler_stopped"

	// Run history
	ActionHistoryRecordFailed = "history_record_failed"
	ActionHistoryConnected    = "history_connected"

	// RabbitMQ
	ActionRabbitMQConnected      = "rabbitmq_connected"
	ActionRabbitMQConnectFailed  = "rabbitmq_connect_failed"
	ActionRabbitMQSetupFailed    = "rabbitmq_setup_failed"
	ActionRabbitMQConsumeStarted = "rabbitmq_consume_started"
	ActionRabbitMQPublishFailed  = "rabbitmq_publish_failed"
	ActionMessageReceived        = "message_received"
	ActionMessageFailed          = "message_processing_failed"
	ActionTransitionPublished    = "transition_published"

	// HTTP
	ActionRequestReceived = "request_received"
	ActionRequestDenied   = "request_denied"
)
