package services

import (
	"regexp"

	"github.com/Amicidal/sigmachad-sub001/internal/domain/entities"
)

// Rule families group rules for the per-extension allow-list
const (
	familySQL             = "sql"
	familyCommand         = "command"
	familyPathTraversal   = "path-traversal"
	familyXSS             = "xss"
	familyXXE             = "xxe"
	familyCrypto          = "crypto"
	familyRandom          = "random"
	familyEval            = "eval"
	familyDeserialization = "deserialization"
	familySSRF            = "ssrf"
	familyRedirect        = "redirect"
	familyCORS            = "cors"
	familyTLS             = "tls"
	familyConfig          = "config"
	familyLDAP            = "ldap"
	familyNoSQL           = "nosql"
	familyPrototype       = "prototype"
	familyCookie          = "cookie"
	familyNetwork         = "network"
	familyRegex           = "regex"
	familyLogging         = "logging"
	familySecrets         = "secrets"
)

var webFamilies = []string{
	familySQL, familyCommand, familyPathTraversal, familyXSS, familyCrypto, familyRandom,
	familyEval, familyDeserialization, familySSRF, familyRedirect, familyCORS, familyTLS,
	familyNoSQL, familyPrototype, familyCookie, familyNetwork, familyRegex, familyLogging,
}

var serverFamilies = []string{
	familySQL, familyCommand, familyPathTraversal, familyCrypto, familyDeserialization,
	familyTLS, familyLDAP, familyXXE, familyCookie, familyNetwork, familyLogging,
}

var configFamilies = []string{familyConfig, familyCORS, familyTLS, familyNetwork}

// extensionFamilies is the explicit allow-list of rule families per file
// extension. Extensions not listed here get no pattern rules besides secrets.
var extensionFamilies = map[string][]string{
	".js":         webFamilies,
	".jsx":        webFamilies,
	".mjs":        webFamilies,
	".cjs":        webFamilies,
	".ts":         webFamilies,
	".tsx":        webFamilies,
	".vue":        webFamilies,
	".html":       {familyXSS, familyEval},
	".htm":        {familyXSS, familyEval},
	".py":         {familySQL, familyCommand, familyPathTraversal},
	".xml":        {familyXXE},
	".java":       serverFamilies,
	".kt":         serverFamilies,
	".cs":         serverFamilies,
	".go":         serverFamilies,
	".php":        append([]string{familyXSS, familyEval}, serverFamilies...),
	".rb":         append([]string{familyEval}, serverFamilies...),
	".json":       configFamilies,
	".yaml":       configFamilies,
	".yml":        configFamilies,
	".toml":       configFamilies,
	".ini":        configFamilies,
	".conf":       configFamilies,
	".cfg":        configFamilies,
	".properties": configFamilies,
	".env":        configFamilies,
}

// catalogRule pairs a rule with its allow-list family
type catalogRule struct {
	rule   entities.SecurityRule
	family string
}

type ruleDef struct {
	id          string
	name        string
	description string
	family      string
	category    entities.RuleCategory
	severity    entities.Severity
	confidence  float64
	cwe         string
	owasp       string
	pattern     string
	remediation string
	tags        []string
}

const (
	owaspInjection     = "A03:2021-Injection"
	owaspCrypto        = "A02:2021-Cryptographic Failures"
	owaspMisconfig     = "A05:2021-Security Misconfiguration"
	owaspAccessControl = "A01:2021-Broken Access Control"
	owaspIntegrity     = "A08:2021-Software and Data Integrity Failures"
	owaspSSRF          = "A10:2021-Server-Side Request Forgery"
	owaspAuth          = "A07:2021-Identification and Authentication Failures"
	owaspLogging       = "A09:2021-Security Logging and Monitoring Failures"
	owaspDesign        = "A04:2021-Insecure Design"
)

var ruleDefs = []ruleDef{
	{
		id: "SQL_INJECTION", name: "SQL injection via string concatenation", family: familySQL,
		description: "A SQL statement is built by concatenating a string literal with a variable.",
		category:    entities.CategorySAST, severity: entities.SeverityCritical, confidence: 0.8,
		cwe: "CWE-89", owasp: owaspInjection,
		pattern:     "(?i)[\"'`]\\s*(?:SELECT|INSERT|UPDATE|DELETE|DROP)\\b[^\"'`]*[\"'`]\\s*\\+\\s*[A-Za-z_$][\\w$.]*",
		remediation: "Use parameterized queries or prepared statements instead of string concatenation.",
		tags:        []string{"injection", "database"},
	},
	{
		id: "SQL_INJECTION_TEMPLATE", name: "SQL injection via template literal", family: familySQL,
		description: "A SQL statement interpolates values with a template literal.",
		category:    entities.CategorySAST, severity: entities.SeverityCritical, confidence: 0.75,
		cwe: "CWE-89", owasp: owaspInjection,
		pattern:     "(?i)`\\s*(?:SELECT|INSERT|UPDATE|DELETE)\\b[^`]*\\$\\{[^}]+\\}[^`]*`",
		remediation: "Pass values as query parameters rather than interpolating them.",
		tags:        []string{"injection", "database"},
	},
	{
		id: "SQL_INJECTION_FORMAT", name: "SQL injection via string formatting", family: familySQL,
		description: "A query is executed with an f-string or %-formatted SQL statement.",
		category:    entities.CategorySAST, severity: entities.SeverityHigh, confidence: 0.7,
		cwe: "CWE-89", owasp: owaspInjection,
		pattern:     "(?i)\\b(?:execute|executemany|query|raw)\\s*\\(\\s*(?:f[\"'][^\"']*(?:SELECT|INSERT|UPDATE|DELETE)|[\"'][^\"']*(?:SELECT|INSERT|UPDATE|DELETE)[^\"']*[\"']\\s*%|[\"'][^\"']*(?:SELECT|INSERT|UPDATE|DELETE)[^\"']*[\"']\\.format\\s*\\()",
		remediation: "Use the driver's placeholder syntax and pass parameters separately.",
		tags:        []string{"injection", "database", "python"},
	},
	{
		id: "XSS_INNER_HTML", name: "Unescaped HTML assignment", family: familyXSS,
		description: "innerHTML or outerHTML is assigned a non-literal value.",
		category:    entities.CategorySAST, severity: entities.SeverityHigh, confidence: 0.7,
		cwe: "CWE-79", owasp: owaspInjection,
		pattern:     "\\.(?:innerHTML|outerHTML)\\s*=\\s*[^\"'`\\s;]",
		remediation: "Use textContent or sanitize HTML with a vetted library before insertion.",
		tags:        []string{"xss", "dom"},
	},
	{
		id: "XSS_DOCUMENT_WRITE", name: "document.write usage", family: familyXSS,
		description: "document.write can inject attacker-controlled markup.",
		category:    entities.CategorySAST, severity: entities.SeverityMedium, confidence: 0.6,
		cwe: "CWE-79", owasp: owaspInjection,
		pattern:     "document\\.write(?:ln)?\\s*\\(",
		remediation: "Build DOM nodes explicitly instead of writing raw markup.",
		tags:        []string{"xss", "dom"},
	},
	{
		id: "XSS_DANGEROUSLY_SET_HTML", name: "React dangerouslySetInnerHTML", family: familyXSS,
		description: "dangerouslySetInnerHTML bypasses React's output escaping.",
		category:    entities.CategorySAST, severity: entities.SeverityMedium, confidence: 0.7,
		cwe: "CWE-79", owasp: owaspInjection,
		pattern:     "dangerouslySetInnerHTML\\s*=",
		remediation: "Sanitize the HTML (for example with DOMPurify) or render it as text.",
		tags:        []string{"xss", "react"},
	},
	{
		id: "COMMAND_INJECTION", name: "Command injection via process execution", family: familyCommand,
		description: "A shell command is built from concatenated or interpolated input.",
		category:    entities.CategorySAST, severity: entities.SeverityCritical, confidence: 0.8,
		cwe: "CWE-78", owasp: owaspInjection,
		pattern:     "\\b(?:exec|execSync|spawn|spawnSync|execFile)\\s*\\([^)]*(?:\\+\\s*[A-Za-z_$]|\\$\\{)",
		remediation: "Avoid the shell; pass arguments as an array and validate them against an allow-list.",
		tags:        []string{"injection", "os"},
	},
	{
		id: "COMMAND_INJECTION_OS_SYSTEM", name: "Shell execution via os.system/os.popen", family: familyCommand,
		description: "os.system and os.popen run their argument through the shell.",
		category:    entities.CategorySAST, severity: entities.SeverityHigh, confidence: 0.7,
		cwe: "CWE-78", owasp: owaspInjection,
		pattern:     "\\bos\\.(?:system|popen)\\s*\\(",
		remediation: "Use subprocess.run with a list of arguments and shell=False.",
		tags:        []string{"injection", "os", "python"},
	},
	{
		id: "COMMAND_INJECTION_SHELL_TRUE", name: "subprocess with shell=True", family: familyCommand,
		description: "subprocess is invoked with shell=True.",
		category:    entities.CategorySAST, severity: entities.SeverityHigh, confidence: 0.8,
		cwe: "CWE-78", owasp: owaspInjection,
		pattern:     "subprocess\\.\\w+\\s*\\([^)]*shell\\s*=\\s*True",
		remediation: "Pass a list of arguments and leave shell=False.",
		tags:        []string{"injection", "os", "python"},
	},
	{
		id: "PATH_TRAVERSAL", name: "Path traversal via request input", family: familyPathTraversal,
		description: "A file is opened using a path taken directly from request input.",
		category:    entities.CategorySAST, severity: entities.SeverityHigh, confidence: 0.7,
		cwe: "CWE-22", owasp: owaspAccessControl,
		pattern:     "\\b(?:readFile|readFileSync|createReadStream|sendFile|open)\\s*\\([^)]*(?:req\\.(?:params|query|body)|request\\.(?:args|GET|POST|form|files))",
		remediation: "Resolve the path against a fixed base directory and reject paths that escape it.",
		tags:        []string{"filesystem"},
	},
	{
		id: "PATH_TRAVERSAL_JOIN", name: "Path built from request input", family: familyPathTraversal,
		description: "path.join or os.path.join combines a base path with request input.",
		category:    entities.CategorySAST, severity: entities.SeverityMedium, confidence: 0.6,
		cwe: "CWE-22", owasp: owaspAccessControl,
		pattern:     "\\b(?:path|os\\.path)\\.join\\s*\\([^)]*(?:req\\.(?:params|query|body)|request\\.(?:args|GET|POST|form))",
		remediation: "Normalize the joined path and verify it stays under the intended root.",
		tags:        []string{"filesystem"},
	},
	{
		id: "XXE_EXTERNAL_ENTITY", name: "XML external entity declaration", family: familyXXE,
		description: "The document declares an external entity resolved from a SYSTEM identifier.",
		category:    entities.CategorySAST, severity: entities.SeverityHigh, confidence: 0.8,
		cwe: "CWE-611", owasp: owaspMisconfig,
		pattern:     "(?i)<!ENTITY\\s+[^>]*\\bSYSTEM\\b",
		remediation: "Disable DTD processing and external entity resolution in the XML parser.",
		tags:        []string{"xml"},
	},
	{
		id: "XXE_UNSAFE_PARSER", name: "XML parser without XXE hardening", family: familyXXE,
		description: "An XML parser factory is created; ensure external entities are disabled.",
		category:    entities.CategorySAST, severity: entities.SeverityMedium, confidence: 0.5,
		cwe: "CWE-611", owasp: owaspMisconfig,
		pattern:     "\\b(?:DocumentBuilderFactory|SAXParserFactory|XMLInputFactory)\\.newInstance\\s*\\(",
		remediation: "Set FEATURE_SECURE_PROCESSING and disallow doctype declarations.",
		tags:        []string{"xml", "java"},
	},
	{
		id: "WEAK_HASH", name: "Weak hash algorithm", family: familyCrypto,
		description: "MD5 or SHA-1 is used; both are broken for security purposes.",
		category:    entities.CategorySAST, severity: entities.SeverityMedium, confidence: 0.7,
		cwe: "CWE-328", owasp: owaspCrypto,
		pattern:     "(?i)(?:createHash\\s*\\(\\s*[\"'](?:md5|sha1)[\"']|hashlib\\.(?:md5|sha1)\\s*\\(|MessageDigest\\.getInstance\\s*\\(\\s*[\"'](?:MD5|SHA-?1)[\"']|\\b(?:md5|sha1)\\.(?:New|Sum)\\s*\\()",
		remediation: "Use SHA-256 or stronger; use bcrypt/scrypt/argon2 for passwords.",
		tags:        []string{"crypto"},
	},
	{
		id: "WEAK_CIPHER", name: "Weak cipher or mode", family: familyCrypto,
		description: "DES, RC4, Blowfish, or ECB mode is used.",
		category:    entities.CategorySAST, severity: entities.SeverityHigh, confidence: 0.75,
		cwe: "CWE-327", owasp: owaspCrypto,
		pattern:     "(?i)(?:createCipher(?:iv)?\\s*\\(\\s*[\"'](?:des|des-ede3?|rc4|bf)[\"'-]|Cipher\\.getInstance\\s*\\(\\s*[\"'](?:DES|RC4|Blowfish)|/ECB/|\\b(?:des|rc4)\\.New(?:Cipher|TripleDESCipher)\\s*\\()",
		remediation: "Use AES-GCM or ChaCha20-Poly1305.",
		tags:        []string{"crypto"},
	},
	{
		id: "JWT_NONE_ALGORITHM", name: "JWT accepts the none algorithm", family: familyCrypto,
		description: "JWT verification allows the unsigned 'none' algorithm.",
		category:    entities.CategorySAST, severity: entities.SeverityHigh, confidence: 0.7,
		cwe: "CWE-347", owasp: owaspAuth,
		pattern:     "(?i)algorithms?\\s*:\\s*\\[?\\s*[\"']none[\"']",
		remediation: "Pin the expected signing algorithm explicitly.",
		tags:        []string{"crypto", "jwt"},
	},
	{
		id: "INSECURE_RANDOM", name: "Non-cryptographic random generator", family: familyRandom,
		description: "Math.random is not suitable for tokens or secrets.",
		category:    entities.CategorySAST, severity: entities.SeverityLow, confidence: 0.6,
		cwe: "CWE-338", owasp: owaspCrypto,
		pattern:     "Math\\.random\\s*\\(\\s*\\)",
		remediation: "Use crypto.randomBytes or crypto.getRandomValues for security-sensitive values.",
		tags:        []string{"crypto"},
	},
	{
		id: "EVAL_USAGE", name: "Dynamic code evaluation", family: familyEval,
		description: "eval or the Function constructor executes dynamically built code.",
		category:    entities.CategorySAST, severity: entities.SeverityHigh, confidence: 0.7,
		cwe: "CWE-95", owasp: owaspInjection,
		pattern:     "(?:\\beval|\\bnew\\s+Function)\\s*\\(",
		remediation: "Avoid evaluating strings as code; use data-driven dispatch instead.",
		tags:        []string{"injection"},
	},
	{
		id: "INSECURE_DESERIALIZATION", name: "Unsafe deserialization", family: familyDeserialization,
		description: "Untrusted data may be deserialized into arbitrary objects.",
		category:    entities.CategorySAST, severity: entities.SeverityHigh, confidence: 0.7,
		cwe: "CWE-502", owasp: owaspIntegrity,
		pattern:     "(?:pickle\\.loads?\\s*\\(|\\bObjectInputStream\\s*\\(|\\bunserialize\\s*\\(|Marshal\\.load\\s*\\(|require\\s*\\(\\s*[\"']node-serialize[\"']\\s*\\))",
		remediation: "Deserialize only trusted data, or switch to a data-only format such as JSON.",
		tags:        []string{"deserialization"},
	},
	{
		id: "SSRF", name: "Server-side request forgery", family: familySSRF,
		description: "An outbound request URL comes directly from request input.",
		category:    entities.CategorySAST, severity: entities.SeverityHigh, confidence: 0.6,
		cwe: "CWE-918", owasp: owaspSSRF,
		pattern:     "\\b(?:axios(?:\\.(?:get|post|put|delete|request))?|fetch|http\\.get|https\\.get|got|needle)\\s*\\(\\s*req\\.(?:query|body|params)",
		remediation: "Validate outbound URLs against an allow-list of hosts.",
		tags:        []string{"network"},
	},
	{
		id: "OPEN_REDIRECT", name: "Open redirect", family: familyRedirect,
		description: "A redirect target comes directly from request input.",
		category:    entities.CategorySAST, severity: entities.SeverityMedium, confidence: 0.6,
		cwe: "CWE-601", owasp: owaspAccessControl,
		pattern:     "\\.redirect\\s*\\(\\s*req\\.(?:query|body|params)",
		remediation: "Redirect only to relative paths or allow-listed hosts.",
		tags:        []string{"web"},
	},
	{
		id: "CORS_WILDCARD", name: "Wildcard CORS origin", family: familyCORS,
		description: "Any origin is allowed to make cross-origin requests.",
		category:    entities.CategoryConfiguration, severity: entities.SeverityMedium, confidence: 0.7,
		cwe: "CWE-942", owasp: owaspMisconfig,
		pattern:     "(?i)(?:Access-Control-Allow-Origin[\"']?\\s*[,:=]\\s*[\"']\\*[\"']|\\borigin\\s*:\\s*[\"']\\*[\"'])",
		remediation: "List the trusted origins explicitly.",
		tags:        []string{"web", "configuration"},
	},
	{
		id: "TLS_VERIFICATION_DISABLED", name: "TLS certificate verification disabled", family: familyTLS,
		description: "Certificate validation is turned off for outbound TLS connections.",
		category:    entities.CategorySAST, severity: entities.SeverityHigh, confidence: 0.85,
		cwe: "CWE-295", owasp: owaspCrypto,
		pattern:     "(?:rejectUnauthorized\\s*:\\s*false|InsecureSkipVerify\\s*:\\s*true|\\bverify\\s*=\\s*False\\b|NODE_TLS_REJECT_UNAUTHORIZED[\"']?\\s*[:=]\\s*[\"']?0)",
		remediation: "Keep certificate verification enabled; trust private CAs explicitly instead.",
		tags:        []string{"crypto", "network"},
	},
	{
		id: "DEBUG_MODE_ENABLED", name: "Debug mode enabled", family: familyConfig,
		description: "Debug mode is switched on in configuration.",
		category:    entities.CategoryConfiguration, severity: entities.SeverityLow, confidence: 0.5,
		cwe: "CWE-489", owasp: owaspMisconfig,
		pattern:     "(?i)[\"']?\\bdebug[\"']?\\s*[:=]\\s*(?:true\\b|1\\b|[\"']true[\"'])",
		remediation: "Disable debug mode outside development environments.",
		tags:        []string{"configuration"},
	},
	{
		id: "LDAP_INJECTION", name: "LDAP injection", family: familyLDAP,
		description: "An LDAP filter is built by concatenating input.",
		category:    entities.CategorySAST, severity: entities.SeverityHigh, confidence: 0.6,
		cwe: "CWE-90", owasp: owaspInjection,
		pattern:     "(?i)\\(\\s*(?:uid|cn|mail|sAMAccountName)\\s*=\\s*[\"']\\s*\\+\\s*[A-Za-z_$]",
		remediation: "Escape LDAP filter values with the library's escaping helper.",
		tags:        []string{"injection", "ldap"},
	},
	{
		id: "NOSQL_INJECTION", name: "NoSQL injection", family: familyNoSQL,
		description: "A query document is taken directly from request input, or $where is used.",
		category:    entities.CategorySAST, severity: entities.SeverityHigh, confidence: 0.6,
		cwe: "CWE-943", owasp: owaspInjection,
		pattern:     "(?:\\.(?:find|findOne|updateOne|updateMany|deleteOne|deleteMany|remove)\\s*\\(\\s*req\\.(?:body|query|params)|[\"']?\\$where[\"']?\\s*:)",
		remediation: "Build query documents from validated fields and avoid $where.",
		tags:        []string{"injection", "database"},
	},
	{
		id: "PROTOTYPE_POLLUTION", name: "Prototype pollution", family: familyPrototype,
		description: "Code writes to __proto__ or Object.prototype.",
		category:    entities.CategorySAST, severity: entities.SeverityMedium, confidence: 0.6,
		cwe: "CWE-1321", owasp: owaspInjection,
		pattern:     "(?:\\[\\s*[\"']__proto__[\"']\\s*\\]|\\.__proto__\\s*=|Object\\.prototype\\.\\w+\\s*=)",
		remediation: "Use Object.create(null) for dictionaries and reject __proto__ keys.",
		tags:        []string{"javascript"},
	},
	{
		id: "INSECURE_COOKIE", name: "Cookie without Secure or HttpOnly", family: familyCookie,
		description: "A cookie is configured with secure or httpOnly disabled.",
		category:    entities.CategorySAST, severity: entities.SeverityLow, confidence: 0.5,
		cwe: "CWE-614", owasp: owaspMisconfig,
		pattern:     "(?i)\\b(?:secure|httpOnly)\\s*:\\s*false\\b",
		remediation: "Set both Secure and HttpOnly on session cookies.",
		tags:        []string{"web", "session"},
	},
	{
		id: "HARDCODED_IP_ADDRESS", name: "Hard-coded IP address", family: familyNetwork,
		description: "An IPv4 address is embedded in source or configuration.",
		category:    entities.CategoryConfiguration, severity: entities.SeverityInfo, confidence: 0.4,
		cwe: "CWE-1188", owasp: owaspMisconfig,
		pattern:     "\\b(?:(?:25[0-5]|2[0-4]\\d|1?\\d?\\d)\\.){3}(?:25[0-5]|2[0-4]\\d|1?\\d?\\d)\\b",
		remediation: "Move addresses into configuration or service discovery.",
		tags:        []string{"network"},
	},
	{
		id: "REGEX_DOS", name: "Regular expression from user input", family: familyRegex,
		description: "A regular expression is compiled from request input.",
		category:    entities.CategorySAST, severity: entities.SeverityMedium, confidence: 0.6,
		cwe: "CWE-1333", owasp: owaspDesign,
		pattern:     "new\\s+RegExp\\s*\\(\\s*req\\.(?:query|body|params)",
		remediation: "Escape user input before using it in a pattern, or use a linear-time engine.",
		tags:        []string{"dos"},
	},
	{
		id: "SENSITIVE_DATA_LOGGING", name: "Sensitive data written to logs", family: familyLogging,
		description: "A log statement includes a password, secret, or token.",
		category:    entities.CategorySAST, severity: entities.SeverityLow, confidence: 0.5,
		cwe: "CWE-532", owasp: owaspLogging,
		pattern:     "(?i)\\b(?:console\\.(?:log|info|debug|warn|error)|logger\\.\\w+|log\\.Print\\w*)\\s*\\([^)]*\\b(?:password|passwd|secret|token)\\b",
		remediation: "Redact credentials before logging.",
		tags:        []string{"logging"},
	},
	{
		id: "HARDCODED_SECRET", name: "Hard-coded credential", family: familySecrets,
		description: "A password, API key, or token is assigned a literal value.",
		category:    entities.CategorySecrets, severity: entities.SeverityHigh, confidence: 0.7,
		cwe: "CWE-798", owasp: owaspAuth,
		pattern:     "(?i)\\b(?:password|passwd|pwd|secret|api[_-]?key|access[_-]?token|auth[_-]?token|client[_-]?secret)[\"']?\\s*[:=]\\s*[\"'][^\"'\\s]{8,}[\"']",
		remediation: "Load credentials from the environment or a secret manager, and rotate the exposed value.",
		tags:        []string{"secrets", "credentials"},
	},
	{
		id: "SECRET_AWS_ACCESS_KEY", name: "AWS access key id", family: familySecrets,
		description: "An AWS access key id is embedded in the file.",
		category:    entities.CategorySecrets, severity: entities.SeverityCritical, confidence: 0.9,
		cwe: "CWE-798", owasp: owaspAuth,
		pattern:     "\\b(?:AKIA|ASIA)[0-9A-Z]{16}\\b",
		remediation: "Deactivate the key in IAM and load credentials from the environment.",
		tags:        []string{"secrets", "aws"},
	},
	{
		id: "SECRET_PRIVATE_KEY", name: "Private key", family: familySecrets,
		description: "A PEM or PGP private key block is embedded in the file.",
		category:    entities.CategorySecrets, severity: entities.SeverityCritical, confidence: 0.95,
		cwe: "CWE-321", owasp: owaspCrypto,
		pattern:     "-----BEGIN (?:RSA |EC |DSA |OPENSSH |ENCRYPTED |PGP )?PRIVATE KEY(?: BLOCK)?-----",
		remediation: "Remove the key from the repository and issue a new key pair.",
		tags:        []string{"secrets", "crypto"},
	},
	{
		id: "SECRET_GITHUB_TOKEN", name: "GitHub token", family: familySecrets,
		description: "A GitHub personal access or app token is embedded in the file.",
		category:    entities.CategorySecrets, severity: entities.SeverityHigh, confidence: 0.9,
		cwe: "CWE-798", owasp: owaspAuth,
		pattern:     "\\bgh[pousr]_[A-Za-z0-9]{36,}\\b",
		remediation: "Revoke the token and use a repository secret instead.",
		tags:        []string{"secrets", "github"},
	},
	{
		id: "SECRET_SLACK_TOKEN", name: "Slack token", family: familySecrets,
		description: "A Slack API token is embedded in the file.",
		category:    entities.CategorySecrets, severity: entities.SeverityHigh, confidence: 0.85,
		cwe: "CWE-798", owasp: owaspAuth,
		pattern:     "\\bxox[baprs]-[A-Za-z0-9-]{10,}",
		remediation: "Revoke the token in the Slack admin console.",
		tags:        []string{"secrets", "slack"},
	},
	{
		id: "SECRET_STRIPE_KEY", name: "Stripe live key", family: familySecrets,
		description: "A Stripe live secret or restricted key is embedded in the file.",
		category:    entities.CategorySecrets, severity: entities.SeverityHigh, confidence: 0.9,
		cwe: "CWE-798", owasp: owaspAuth,
		pattern:     "\\b(?:sk|rk)_live_[0-9a-zA-Z]{24,}",
		remediation: "Roll the key in the Stripe dashboard.",
		tags:        []string{"secrets", "stripe"},
	},
	{
		id: "SECRET_GOOGLE_API_KEY", name: "Google API key", family: familySecrets,
		description: "A Google API key is embedded in the file.",
		category:    entities.CategorySecrets, severity: entities.SeverityHigh, confidence: 0.85,
		cwe: "CWE-798", owasp: owaspAuth,
		pattern:     "\\bAIza[0-9A-Za-z_-]{35}\\b",
		remediation: "Restrict or regenerate the key in the Google Cloud console.",
		tags:        []string{"secrets", "gcp"},
	},
	{
		id: "SECRET_JWT", name: "Embedded JSON Web Token", family: familySecrets,
		description: "A JWT is embedded in the file.",
		category:    entities.CategorySecrets, severity: entities.SeverityMedium, confidence: 0.6,
		cwe: "CWE-798", owasp: owaspAuth,
		pattern:     "\\beyJ[A-Za-z0-9_-]{10,}\\.eyJ[A-Za-z0-9_-]{10,}\\.[A-Za-z0-9_-]{10,}",
		remediation: "Do not commit tokens; issue them at runtime.",
		tags:        []string{"secrets", "jwt"},
	},
	{
		id: "SECRET_DATABASE_URL", name: "Database URL with credentials", family: familySecrets,
		description: "A connection string embeds a username and password.",
		category:    entities.CategorySecrets, severity: entities.SeverityHigh, confidence: 0.8,
		cwe: "CWE-798", owasp: owaspAuth,
		pattern:     "(?i)\\b(?:postgres(?:ql)?|mysql|mongodb(?:\\+srv)?|redis|amqps?)://[^:\\s/\"']+:[^@\\s/\"']+@",
		remediation: "Move the connection string into the environment and rotate the password.",
		tags:        []string{"secrets", "database"},
	},
}

// buildCatalog compiles the declarative rule table once
func buildCatalog() []catalogRule {
	catalog := make([]catalogRule, 0, len(ruleDefs))
	for _, d := range ruleDefs {
		confidence := d.confidence
		if confidence == 0 {
			confidence = entities.DefaultRuleConfidence
		}
		catalog = append(catalog, catalogRule{
			family: d.family,
			rule: entities.SecurityRule{
				ID:          d.id,
				Name:        d.name,
				Description: d.description,
				Severity:    d.severity,
				CWE:         d.cwe,
				OWASP:       d.owasp,
				Pattern:     regexp.MustCompile(d.pattern),
				Confidence:  confidence,
				Category:    d.category,
				Remediation: d.remediation,
				Tags:        d.tags,
			},
		})
	}
	return catalog
}

// ruleAppliesToExtension is the per-extension allow-list check. Secrets
// rules apply to every file.
func ruleAppliesToExtension(r catalogRule, ext string) bool {
	if r.family == familySecrets {
		return true
	}
	for _, f := range extensionFamilies[ext] {
		if f == r.family {
			return true
		}
	}
	return false
}
