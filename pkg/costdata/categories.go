package costdata

import "strings"

// Unified service category taxonomy. Provider service names map into exactly
// one of these; unmapped names fall into CategoryOther.
const (
	CategoryCompute    = "Compute"
	CategoryStorage    = "Storage"
	CategoryDatabase   = "Database"
	CategoryNetworking = "Networking"
	CategoryManagement = "Management"
	CategorySecurity   = "Security"
	CategoryOther      = "Other"
)

// exact provider service name -> unified category
var serviceCategories = map[string]string{
	// AWS
	"Amazon Elastic Compute Cloud - Compute": CategoryCompute,
	"AWS Lambda":                             CategoryCompute,
	"Amazon Elastic Container Service":       CategoryCompute,
	"Amazon Elastic Kubernetes Service":      CategoryCompute,
	"Amazon Simple Storage Service":          CategoryStorage,
	"Amazon Elastic Block Store":             CategoryStorage,
	"Amazon Glacier":                         CategoryStorage,
	"Amazon Elastic File System":             CategoryStorage,
	"Amazon Relational Database Service":     CategoryDatabase,
	"Amazon DynamoDB":                        CategoryDatabase,
	"Amazon ElastiCache":                     CategoryDatabase,
	"Amazon Redshift":                        CategoryDatabase,
	"Amazon Virtual Private Cloud":           CategoryNetworking,
	"Amazon CloudFront":                      CategoryNetworking,
	"Elastic Load Balancing":                 CategoryNetworking,
	"Amazon Route 53":                        CategoryNetworking,
	"AmazonCloudWatch":                       CategoryManagement,
	"AWS CloudTrail":                         CategoryManagement,
	"AWS Config":                             CategoryManagement,
	"AWS Key Management Service":             CategorySecurity,
	"AWS WAF":                                CategorySecurity,
	"Amazon GuardDuty":                       CategorySecurity,

	// GCP
	"Compute Engine":        CategoryCompute,
	"Cloud Functions":       CategoryCompute,
	"Kubernetes Engine":     CategoryCompute,
	"Cloud Storage":         CategoryStorage,
	"Persistent Disk":       CategoryStorage,
	"Cloud SQL":             CategoryDatabase,
	"Cloud Spanner":         CategoryDatabase,
	"BigQuery":              CategoryDatabase,
	"Cloud CDN":             CategoryNetworking,
	"Cloud Load Balancing":  CategoryNetworking,
	"Cloud Monitoring":      CategoryManagement,
	"Cloud Logging":         CategoryManagement,
	"Cloud Key Management":  CategorySecurity,
	"Cloud Armor":           CategorySecurity,

	// Azure
	"Virtual Machines":      CategoryCompute,
	"Azure Functions":       CategoryCompute,
	"Azure Kubernetes Service": CategoryCompute,
	"Storage Accounts":      CategoryStorage,
	"Managed Disks":         CategoryStorage,
	"Azure SQL Database":    CategoryDatabase,
	"Azure Cosmos DB":       CategoryDatabase,
	"Virtual Network":       CategoryNetworking,
	"Azure Front Door":      CategoryNetworking,
	"Azure Monitor":         CategoryManagement,
	"Key Vault":             CategorySecurity,
	"Microsoft Defender for Cloud": CategorySecurity,
}

// keyword fallbacks applied when no exact mapping exists
var categoryKeywords = []struct {
	keyword  string
	category string
}{
	{"compute", CategoryCompute},
	{"lambda", CategoryCompute},
	{"kubernetes", CategoryCompute},
	{"container", CategoryCompute},
	{"storage", CategoryStorage},
	{"disk", CategoryStorage},
	{"backup", CategoryStorage},
	{"database", CategoryDatabase},
	{"sql", CategoryDatabase},
	{"cache", CategoryDatabase},
	{"network", CategoryNetworking},
	{"cdn", CategoryNetworking},
	{"dns", CategoryNetworking},
	{"load balanc", CategoryNetworking},
	{"monitor", CategoryManagement},
	{"logging", CategoryManagement},
	{"audit", CategoryManagement},
	{"security", CategorySecurity},
	{"firewall", CategorySecurity},
	{"key management", CategorySecurity},
	{"identity", CategorySecurity},
}

// UnifiedCategory maps a provider-native service name into the unified
// taxonomy. Unmapped names fall into CategoryOther.
func UnifiedCategory(serviceName string) string {
	if category, ok := serviceCategories[serviceName]; ok {
		return category
	}
	lower := strings.ToLower(serviceName)
	for _, kw := range categoryKeywords {
		if strings.Contains(lower, kw.keyword) {
			return kw.category
		}
	}
	return CategoryOther
}

// AllCategories returns the taxonomy in a stable order.
func AllCategories() []string {
	return []string{
		CategoryCompute,
		CategoryStorage,
		CategoryDatabase,
		CategoryNetworking,
		CategoryManagement,
		CategorySecurity,
		CategoryOther,
	}
}
