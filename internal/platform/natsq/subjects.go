package natsq

import (
	"fmt"

	"github.com/phrazzld/story-api/internal/task"
)

func taskSubject(prefix string, env *task.Envelope) string {
	return fmt.Sprintf("%s.tasks.%s.%s", prefix, env.Queue(), env.Kind)
}

func streamSubjects(prefix string) []string {
	return []string{prefix + ".tasks.>"}
}

func queueFilter(prefix, queue string) string {
	return fmt.Sprintf("%s.tasks.%s.>", prefix, queue)
}

func consumerName(prefix, queue string) string {
	return fmt.Sprintf("%s-%s-workers", prefix, queue)
}

func controlSubject(prefix, command string) string {
	return fmt.Sprintf("%s.control.%s", prefix, command)
}

func controlWildcard(prefix string) string {
	return prefix + ".control.*"
}

func resultKey(taskID string) string {
	return "result." + taskID
}

func revokedKey(taskID string) string {
	return "revoked." + taskID
}

// attemptFromDeliveries converts the JetStream delivery count, which starts
// at 1, into the number of earlier executions.
func attemptFromDeliveries(numDelivered uint64) int {
	if numDelivered == 0 {
		return 0
	}
	return int(numDelivered - 1)
}
