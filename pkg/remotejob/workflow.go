package remotejob

import (
	"github.com/buxiuxian/summer-project/pkg/billing"
	"github.com/buxiuxian/summer-project/pkg/config"
	"github.com/buxiuxian/summer-project/pkg/llmclient"
	"github.com/buxiuxian/summer-project/pkg/progress"
	"github.com/buxiuxian/summer-project/pkg/remotejobclient"
)

// core holds the collaborators both the submission and retrieval
// handlers need; split out so registry.Handler can be implemented by
// two small, single-purpose types (SubmitHandler, FetchHandler)
// instead of one handler branching on task code internally — mirroring
// how pkg/knowledge is one handler per single code.
type core struct {
	llm       llmclient.Client
	remote    remotejobclient.Client
	scenarios *config.ScenarioRegistry
	defaults  *config.Defaults
	billing   *billing.Manager
	hub       *progress.Hub
	llmOpts   llmclient.CompletionOptions
}

// New constructs the submission and retrieval handlers sharing one set
// of collaborators. Register both with pkg/registry.
func New(llm llmclient.Client, remote remotejobclient.Client, scenarios *config.ScenarioRegistry, defaults *config.Defaults, billingMgr *billing.Manager, hub *progress.Hub, opts llmclient.CompletionOptions) (*SubmitHandler, *FetchHandler) {
	c := &core{llm: llm, remote: remote, scenarios: scenarios, defaults: defaults, billing: billingMgr, hub: hub, llmOpts: opts}
	return &SubmitHandler{core: c}, &FetchHandler{core: c}
}
