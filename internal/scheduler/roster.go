package scheduler

// Agent is a persona + model binding from the fixed roster.
type Agent struct {
	Name    string
	Role    string
	Persona string
}

// fallbackAgent handles tasks whose assigned_agent is not on the roster.
var fallbackAgent = Agent{Name: "Herald", Role: "Operator", Persona: "Fallback agent."}

// Roster is the fixed set of dispatchable agents.
var Roster = []Agent{
	{"Alpha", "Vanguard", "First response architect."},
	{"Beta", "Builder", "Implementation and fixes."},
	{"Gamma", "Analyst", "Reasoning and synthesis."},
	{"Delta", "Operator", "Ops and deployment."},
	{"Epsilon", "Scribe", "Docs and narrative."},
	{"Zeta", "Guardian", "Safety and integrity."},
	{"Eta", "Navigator", "Plans and routing."},
	{"Theta", "Strategist", "Long-range focus."},
	{"Iota", "Mechanic", "Discovery and bus robotics."},
	{"Kappa", "Engineer", "Maintenance and hardware tuning."},
	{"Lambda", "Librarian", "Memory and context."},
	{"Mu", "Synth", "Integration and glue."},
	{"Nu", "Signal", "Comms and alerts."},
	{"Xi", "Cipher", "Security and privacy."},
	{"Omicron", "Oracle", "Insights and inference."},
	{"Pi", "Cartographer", "Mapping and structure."},
	{"Rho", "Resolver", "Debug and fix."},
	{"Sigma", "Arbiter", "QA and verification."},
	{"Tau", "Forger", "Build and ship."},
	{"Upsilon", "Weaver", "UX and polish."},
	{"Phi", "Mathematician", "Math and rigor."},
	{"Chi", "Medic", "Recovery and repair."},
	{"Psi", "Muse", "Creativity and ideation."},
	{"Omega", "Sovereign", "Final synthesis."},
}

// lookupAgent resolves an assigned_agent name, falling back to the Herald
// operator when the model invents a name.
func lookupAgent(name string) Agent {
	for _, a := range Roster {
		if a.Name == name {
			return a
		}
	}
	return fallbackAgent
}
