package cfg

type Cfg struct {
	// Database configuration
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Application configuration
	JournalsDir       string
	Port              string
	BaseUrl           string
	WorkerCount       int
	SchedulerInterval int
	APIAccessKey      string

	// Repository identity (exposed via OAI-PMH Identify)
	RepositoryName string
	AdminEmail     string

	// DOI registration authority
	DOIPrefix    string
	DOIAPIUrl    string
	DOIDepositor string
	DOIPassword  string

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}
