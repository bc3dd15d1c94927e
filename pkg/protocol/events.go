package protocol

// Status stream events emitted by the orchestrator and agents (status message content).
const (
	EventRunStarted       = "run.started"
	EventRunStopped       = "run.stopped"
	EventAttemptStarted   = "attempt.started"
	EventStrategySwitched = "strategy.switched"
	EventHumanWaiting     = "human.waiting"
	EventTaskCompleted    = "task.completed"
	EventTaskFailed       = "task.failed"
	EventToolsExecuting   = "tools.executing"
	EventLLMError         = "llm.error"
	EventStreamBegin      = "stream.begin"
	EventStreamEnd        = "stream.end"
	EventMaxIterations    = "max_iterations"
)

// Sender names used on the queues.
const (
	SenderOrchestrator = "SmartRouter"
	SenderGUIAgent     = "GUIAgent"
	SenderCodeAgent    = "CodeAgent"
	SenderClient       = "client"
)
