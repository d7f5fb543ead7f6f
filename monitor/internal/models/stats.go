package models

// Dashboard is the overview shown on the landing page.
type Dashboard struct {
	TotalExceptions    int64 `json:"totalExceptions"`
	ExceptionsLast24h  int64 `json:"exceptionsLast24h"`
	ExceptionsLastHour int64 `json:"exceptionsLastHour"`
	ExceptionsInRange  int64 `json:"exceptionsInRange"`

	ExceptionTypeStats []GroupCount `json:"exceptionTypeStats"`
	ProjectStats       []GroupCount `json:"projectStats"`
	ComponentStats     []GroupCount `json:"componentStats"`
	EnvironmentStats   []GroupCount `json:"environmentStats"`

	RecentExceptions []*Record `json:"recentExceptions"`

	Window TimeWindow `json:"window"`
}

// ComponentBreakdown lists component counts and the pods of the busiest one.
type ComponentBreakdown struct {
	ComponentStats    []GroupCount `json:"componentStats"`
	SelectedComponent string       `json:"selectedComponent,omitempty"`
	ComponentPods     []PodCount   `json:"componentPods"`
	Window            TimeWindow   `json:"window"`
}

// EnvironmentGroup is a per-environment list of counts.
type EnvironmentGroup struct {
	Environment string       `json:"environment"`
	Counts      []GroupCount `json:"counts"`
}

// ProjectBreakdown lists project counts and projects per environment.
type ProjectBreakdown struct {
	ProjectStats          []GroupCount       `json:"projectStats"`
	ProjectsByEnvironment []EnvironmentGroup `json:"projectsByEnvironment"`
	Window                TimeWindow         `json:"window"`
}

// EnvironmentBreakdown lists environment counts and components per
// environment.
type EnvironmentBreakdown struct {
	EnvironmentStats        []GroupCount       `json:"environmentStats"`
	ComponentsByEnvironment []EnvironmentGroup `json:"componentsByEnvironment"`
	Window                  TimeWindow         `json:"window"`
}

// FilterOptions holds the distinct values offered by the list filters.
type FilterOptions struct {
	Projects       []string `json:"projects"`
	ExceptionTypes []string `json:"exceptionTypes"`
	Environments   []string `json:"environments"`
	Components     []string `json:"components"`
	Services       []string `json:"services"`
	Methods        []string `json:"methods"`
}
