package task

import "strings"

// Kind names a task. The set of kinds is closed.
type Kind string

// Task kinds.
const (
	KindCreateStory    Kind = "stories.create_story"
	KindUpdateStory    Kind = "stories.update_story"
	KindDeleteStory    Kind = "stories.delete_story"
	KindPatchStory     Kind = "stories.patch_story"
	KindGenerateStory  Kind = "llm.generate_story"
	KindAnalyzeStory   Kind = "llm.analyze_story"
	KindSummarizeStory Kind = "llm.summarize_story"
	KindImproveStory   Kind = "llm.improve_story"
)

// Queue names. A kind is routed to the queue named by its family prefix.
const (
	QueueStories = "stories"
	QueueLLM     = "llm"
	QueueDefault = "default"
)

var allKinds = []Kind{
	KindCreateStory,
	KindUpdateStory,
	KindDeleteStory,
	KindPatchStory,
	KindGenerateStory,
	KindAnalyzeStory,
	KindSummarizeStory,
	KindImproveStory,
}

// Kinds returns every known task kind.
func Kinds() []Kind {
	out := make([]Kind, len(allKinds))
	copy(out, allKinds)
	return out
}

// Queues returns every queue name a worker may consume.
func Queues() []string {
	return []string{QueueStories, QueueLLM, QueueDefault}
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	for _, known := range allKinds {
		if k == known {
			return true
		}
	}
	return false
}

// Queue returns the queue that k is routed to.
func (k Kind) Queue() string {
	return QueueFor(string(k))
}

// QueueFor routes an arbitrary task name: "stories.*" and "llm.*" go to
// their own queues, everything else goes to the default queue.
func QueueFor(name string) string {
	family, _, ok := strings.Cut(name, ".")
	if !ok {
		return QueueDefault
	}
	switch family {
	case QueueStories:
		return QueueStories
	case QueueLLM:
		return QueueLLM
	default:
		return QueueDefault
	}
}

func (k Kind) String() string { return string(k) }
