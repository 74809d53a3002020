package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	ENV_PREFIX = "BILLING_SYNC"

	URL_APP_NAME                    = "URL_App_Name"
	URL_PATH_PREFIX                 = "URL_Path_Prefix"
	URL_BASE_PATH                   = "URL_Base_Path"
	HTTP_SHUTDOWN_TIMEOUT           = "HTTP_Shutdown_Timeout"
	SERVICE_TO_SERVICE_CREDENTIALS  = "Service_To_Service_Credentials"
	PROFILE                         = "Enable_Profile"
	SYNC_DATABASE_HOST              = "Sync_Database_Host"
	SYNC_DATABASE_PORT              = "Sync_Database_Port"
	SYNC_DATABASE_USER              = "Sync_Database_User"
	SYNC_DATABASE_PASSWORD          = "Sync_Database_Password"
	SYNC_DATABASE_NAME              = "Sync_Database_Name"
	SYNC_DATABASE_SCHEMA            = "Sync_Database_Schema"
	SYNC_DATABASE_SSL_MODE          = "Sync_Database_SSL_Mode"
	SYNC_DATABASE_SSL_ROOT_CERT     = "Sync_Database_SSL_Root_Cert"
	SYNC_DATABASE_QUERY_TIMEOUT     = "Sync_Database_Query_Timeout"
	SYNC_ACCOUNT_ID                 = "Sync_Account_Id"
	BILLING_API_BASE_URL            = "Billing_Api_Base_Url"
	BILLING_API_SECRET_KEY          = "Billing_Api_Secret_Key"
	BILLING_API_VERSION             = "Billing_Api_Version"
	WEBHOOK_SIGNING_SECRET          = "Webhook_Signing_Secret"
	WEBHOOK_SIGNATURE_TOLERANCE     = "Webhook_Signature_Tolerance"
	WEBHOOK_BASE_URL                = "Webhook_Base_Url"
	WEBHOOK_PERSIST_ON_SHUTDOWN     = "Webhook_Persist_On_Shutdown"
	WEBHOOK_ENABLED_EVENTS          = "Webhook_Enabled_Events"
	BACKFILL_PAGE_SIZE              = "Backfill_Page_Size"
	BACKFILL_RELATED_ENTITIES       = "Backfill_Related_Entities"
	AUTO_EXPAND_LISTS               = "Auto_Expand_Lists"
	RETRY_MAX_RETRIES               = "Retry_Max_Retries"
	RETRY_INITIAL_DELAY             = "Retry_Initial_Delay"
	RETRY_MAX_DELAY                 = "Retry_Max_Delay"
	RETRY_JITTER_BOUND              = "Retry_Jitter_Bound"
	SCHEDULER_AUTH_IMPL             = "Scheduler_Auth_Impl"
	SCHEDULER_JWT_SIGNING_KEY       = "Scheduler_Jwt_Signing_Key"
	SCHEDULER_PSK                   = "Scheduler_Psk"
	FANOUT_ENABLED                  = "Fanout_Enabled"
	FANOUT_KAFKA_BROKERS            = "Fanout_Kafka_Brokers"
	FANOUT_KAFKA_TOPIC              = "Fanout_Kafka_Topic"
	FANOUT_KAFKA_BATCH_SIZE         = "Fanout_Kafka_Batch_Size"
	FANOUT_KAFKA_BATCH_BYTES        = "Fanout_Kafka_Batch_Bytes"
	FANOUT_KAFKA_USERNAME           = "Fanout_Kafka_Username"
	FANOUT_KAFKA_PASSWORD           = "Fanout_Kafka_Password"
	FANOUT_KAFKA_SASL_MECHANISM     = "Fanout_Kafka_SASL_Mechanism"
	FANOUT_KAFKA_CA                 = "Fanout_Kafka_CA"
	WEBHOOK_CACHE_SIZE              = "Webhook_Cache_Size"
	WEBHOOK_CACHE_TTL               = "Webhook_Cache_Ttl"
	DEFAULT_BILLING_API_BASE_URL    = "https://api.stripe.com"
)

type Config struct {
	UrlAppName                  string
	UrlPathPrefix               string
	UrlBasePath                 string
	HttpShutdownTimeout         time.Duration
	ServiceToServiceCredentials map[string]interface{}
	Profile                     bool
	SyncDatabaseHost            string
	SyncDatabasePort            int
	SyncDatabaseUser            string
	SyncDatabasePassword        string
	SyncDatabaseName            string
	SyncDatabaseSchema          string
	SyncDatabaseSslMode         string
	SyncDatabaseSslRootCert     string
	SyncDatabaseQueryTimeout    time.Duration
	SyncAccountId               string
	BillingApiBaseUrl           string
	BillingApiSecretKey         string
	BillingApiVersion           string
	WebhookSigningSecret        string
	WebhookSignatureTolerance   time.Duration
	WebhookBaseUrl              string
	WebhookPersistOnShutdown    bool
	WebhookEnabledEvents        []string
	BackfillPageSize            int
	BackfillRelatedEntities     bool
	AutoExpandLists             bool
	RetryMaxRetries             int
	RetryInitialDelay           time.Duration
	RetryMaxDelay               time.Duration
	RetryJitterBound            time.Duration
	SchedulerAuthImpl           string
	SchedulerJwtSigningKey      string
	SchedulerPsk                string
	FanoutEnabled               bool
	FanoutKafkaBrokers          []string
	FanoutKafkaTopic            string
	FanoutKafkaBatchSize        int
	FanoutKafkaBatchBytes       int
	FanoutKafkaUsername         string
	FanoutKafkaPassword         string
	FanoutKafkaSASLMechanism    string
	FanoutKafkaCA               string
	WebhookCacheSize            int
	WebhookCacheTtl             time.Duration
}

func (c Config) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s\n", URL_PATH_PREFIX, c.UrlPathPrefix)
	fmt.Fprintf(&b, "%s: %s\n", URL_APP_NAME, c.UrlAppName)
	fmt.Fprintf(&b, "%s: %s\n", URL_BASE_PATH, c.UrlBasePath)
	fmt.Fprintf(&b, "%s: %s\n", HTTP_SHUTDOWN_TIMEOUT, c.HttpShutdownTimeout)
	fmt.Fprintf(&b, "%s: %t\n", PROFILE, c.Profile)
	fmt.Fprintf(&b, "%s: %s\n", SYNC_DATABASE_HOST, c.SyncDatabaseHost)
	fmt.Fprintf(&b, "%s: %d\n", SYNC_DATABASE_PORT, c.SyncDatabasePort)
	fmt.Fprintf(&b, "%s: %s\n", SYNC_DATABASE_NAME, c.SyncDatabaseName)
	fmt.Fprintf(&b, "%s: %s\n", SYNC_DATABASE_SCHEMA, c.SyncDatabaseSchema)
	fmt.Fprintf(&b, "%s: %s\n", SYNC_DATABASE_SSL_MODE, c.SyncDatabaseSslMode)
	fmt.Fprintf(&b, "%s: %s\n", SYNC_DATABASE_QUERY_TIMEOUT, c.SyncDatabaseQueryTimeout)
	fmt.Fprintf(&b, "%s: %s\n", SYNC_ACCOUNT_ID, c.SyncAccountId)
	fmt.Fprintf(&b, "%s: %s\n", BILLING_API_BASE_URL, c.BillingApiBaseUrl)
	fmt.Fprintf(&b, "%s: %s\n", BILLING_API_VERSION, c.BillingApiVersion)
	fmt.Fprintf(&b, "%s: %s\n", WEBHOOK_BASE_URL, c.WebhookBaseUrl)
	fmt.Fprintf(&b, "%s: %s\n", WEBHOOK_SIGNATURE_TOLERANCE, c.WebhookSignatureTolerance)
	fmt.Fprintf(&b, "%s: %t\n", WEBHOOK_PERSIST_ON_SHUTDOWN, c.WebhookPersistOnShutdown)
	fmt.Fprintf(&b, "%s: %s\n", WEBHOOK_ENABLED_EVENTS, c.WebhookEnabledEvents)
	fmt.Fprintf(&b, "%s: %d\n", BACKFILL_PAGE_SIZE, c.BackfillPageSize)
	fmt.Fprintf(&b, "%s: %t\n", BACKFILL_RELATED_ENTITIES, c.BackfillRelatedEntities)
	fmt.Fprintf(&b, "%s: %t\n", AUTO_EXPAND_LISTS, c.AutoExpandLists)
	fmt.Fprintf(&b, "%s: %d\n", RETRY_MAX_RETRIES, c.RetryMaxRetries)
	fmt.Fprintf(&b, "%s: %s\n", RETRY_INITIAL_DELAY, c.RetryInitialDelay)
	fmt.Fprintf(&b, "%s: %s\n", RETRY_MAX_DELAY, c.RetryMaxDelay)
	fmt.Fprintf(&b, "%s: %s\n", RETRY_JITTER_BOUND, c.RetryJitterBound)
	fmt.Fprintf(&b, "%s: %s\n", SCHEDULER_AUTH_IMPL, c.SchedulerAuthImpl)
	fmt.Fprintf(&b, "%s: %t\n", FANOUT_ENABLED, c.FanoutEnabled)
	fmt.Fprintf(&b, "%s: %s\n", FANOUT_KAFKA_BROKERS, c.FanoutKafkaBrokers)
	fmt.Fprintf(&b, "%s: %s\n", FANOUT_KAFKA_TOPIC, c.FanoutKafkaTopic)
	fmt.Fprintf(&b, "%s: %d\n", WEBHOOK_CACHE_SIZE, c.WebhookCacheSize)
	fmt.Fprintf(&b, "%s: %s\n", WEBHOOK_CACHE_TTL, c.WebhookCacheTtl)

	return b.String()
}

func GetConfig() *Config {
	options := viper.New()

	options.SetDefault(URL_PATH_PREFIX, "api")
	options.SetDefault(URL_APP_NAME, "billing-sync")
	options.SetDefault(HTTP_SHUTDOWN_TIMEOUT, 2)
	options.SetDefault(SERVICE_TO_SERVICE_CREDENTIALS, "")
	options.SetDefault(PROFILE, false)
	options.SetDefault(SYNC_DATABASE_HOST, "localhost")
	options.SetDefault(SYNC_DATABASE_PORT, 5432)
	options.SetDefault(SYNC_DATABASE_USER, "billing-sync")
	options.SetDefault(SYNC_DATABASE_PASSWORD, "billing-sync")
	options.SetDefault(SYNC_DATABASE_NAME, "billing-sync")
	options.SetDefault(SYNC_DATABASE_SCHEMA, "billing")
	options.SetDefault(SYNC_DATABASE_SSL_MODE, "disable")
	options.SetDefault(SYNC_DATABASE_SSL_ROOT_CERT, "db_ssl_root_cert.pem")
	options.SetDefault(SYNC_DATABASE_QUERY_TIMEOUT, 5)
	options.SetDefault(SYNC_ACCOUNT_ID, "default")
	options.SetDefault(BILLING_API_BASE_URL, DEFAULT_BILLING_API_BASE_URL)
	options.SetDefault(BILLING_API_SECRET_KEY, "")
	options.SetDefault(BILLING_API_VERSION, "2024-06-20")
	options.SetDefault(WEBHOOK_SIGNING_SECRET, "")
	options.SetDefault(WEBHOOK_SIGNATURE_TOLERANCE, 300)
	options.SetDefault(WEBHOOK_BASE_URL, "")
	options.SetDefault(WEBHOOK_PERSIST_ON_SHUTDOWN, true)
	options.SetDefault(WEBHOOK_ENABLED_EVENTS, []string{"*"})
	options.SetDefault(BACKFILL_PAGE_SIZE, 100)
	options.SetDefault(BACKFILL_RELATED_ENTITIES, true)
	options.SetDefault(AUTO_EXPAND_LISTS, true)
	options.SetDefault(RETRY_MAX_RETRIES, 5)
	options.SetDefault(RETRY_INITIAL_DELAY, "500ms")
	options.SetDefault(RETRY_MAX_DELAY, "10s")
	options.SetDefault(RETRY_JITTER_BOUND, "250ms")
	options.SetDefault(SCHEDULER_AUTH_IMPL, "psk")
	options.SetDefault(SCHEDULER_JWT_SIGNING_KEY, "")
	options.SetDefault(SCHEDULER_PSK, "")
	options.SetDefault(FANOUT_ENABLED, false)
	options.SetDefault(FANOUT_KAFKA_BROKERS, []string{"kafka:29092"})
	options.SetDefault(FANOUT_KAFKA_TOPIC, "platform.billing-sync.entity-changes")
	options.SetDefault(FANOUT_KAFKA_BATCH_SIZE, 100)
	options.SetDefault(FANOUT_KAFKA_BATCH_BYTES, 1048576)
	options.SetDefault(FANOUT_KAFKA_USERNAME, "")
	options.SetDefault(FANOUT_KAFKA_PASSWORD, "")
	options.SetDefault(FANOUT_KAFKA_SASL_MECHANISM, "plain")
	options.SetDefault(FANOUT_KAFKA_CA, "")
	options.SetDefault(WEBHOOK_CACHE_SIZE, 128)
	options.SetDefault(WEBHOOK_CACHE_TTL, 300)

	options.SetEnvPrefix(ENV_PREFIX)
	options.AutomaticEnv()

	return &Config{
		UrlPathPrefix:               options.GetString(URL_PATH_PREFIX),
		UrlAppName:                  options.GetString(URL_APP_NAME),
		UrlBasePath:                 buildUrlBasePath(options.GetString(URL_PATH_PREFIX), options.GetString(URL_APP_NAME)),
		HttpShutdownTimeout:         options.GetDuration(HTTP_SHUTDOWN_TIMEOUT) * time.Second,
		ServiceToServiceCredentials: options.GetStringMap(SERVICE_TO_SERVICE_CREDENTIALS),
		Profile:                     options.GetBool(PROFILE),
		SyncDatabaseHost:            options.GetString(SYNC_DATABASE_HOST),
		SyncDatabasePort:            options.GetInt(SYNC_DATABASE_PORT),
		SyncDatabaseUser:            options.GetString(SYNC_DATABASE_USER),
		SyncDatabasePassword:        options.GetString(SYNC_DATABASE_PASSWORD),
		SyncDatabaseName:            options.GetString(SYNC_DATABASE_NAME),
		SyncDatabaseSchema:          options.GetString(SYNC_DATABASE_SCHEMA),
		SyncDatabaseSslMode:         options.GetString(SYNC_DATABASE_SSL_MODE),
		SyncDatabaseSslRootCert:     options.GetString(SYNC_DATABASE_SSL_ROOT_CERT),
		SyncDatabaseQueryTimeout:    options.GetDuration(SYNC_DATABASE_QUERY_TIMEOUT) * time.Second,
		SyncAccountId:               options.GetString(SYNC_ACCOUNT_ID),
		BillingApiBaseUrl:           options.GetString(BILLING_API_BASE_URL),
		BillingApiSecretKey:         options.GetString(BILLING_API_SECRET_KEY),
		BillingApiVersion:           options.GetString(BILLING_API_VERSION),
		WebhookSigningSecret:        options.GetString(WEBHOOK_SIGNING_SECRET),
		WebhookSignatureTolerance:   options.GetDuration(WEBHOOK_SIGNATURE_TOLERANCE) * time.Second,
		WebhookBaseUrl:              options.GetString(WEBHOOK_BASE_URL),
		WebhookPersistOnShutdown:    options.GetBool(WEBHOOK_PERSIST_ON_SHUTDOWN),
		WebhookEnabledEvents:        options.GetStringSlice(WEBHOOK_ENABLED_EVENTS),
		BackfillPageSize:            options.GetInt(BACKFILL_PAGE_SIZE),
		BackfillRelatedEntities:     options.GetBool(BACKFILL_RELATED_ENTITIES),
		AutoExpandLists:             options.GetBool(AUTO_EXPAND_LISTS),
		RetryMaxRetries:             options.GetInt(RETRY_MAX_RETRIES),
		RetryInitialDelay:           options.GetDuration(RETRY_INITIAL_DELAY),
		RetryMaxDelay:               options.GetDuration(RETRY_MAX_DELAY),
		RetryJitterBound:            options.GetDuration(RETRY_JITTER_BOUND),
		SchedulerAuthImpl:           options.GetString(SCHEDULER_AUTH_IMPL),
		SchedulerJwtSigningKey:      options.GetString(SCHEDULER_JWT_SIGNING_KEY),
		SchedulerPsk:                options.GetString(SCHEDULER_PSK),
		FanoutEnabled:               options.GetBool(FANOUT_ENABLED),
		FanoutKafkaBrokers:          options.GetStringSlice(FANOUT_KAFKA_BROKERS),
		FanoutKafkaTopic:            options.GetString(FANOUT_KAFKA_TOPIC),
		FanoutKafkaBatchSize:        options.GetInt(FANOUT_KAFKA_BATCH_SIZE),
		FanoutKafkaBatchBytes:       options.GetInt(FANOUT_KAFKA_BATCH_BYTES),
		FanoutKafkaUsername:         options.GetString(FANOUT_KAFKA_USERNAME),
		FanoutKafkaPassword:         options.GetString(FANOUT_KAFKA_PASSWORD),
		FanoutKafkaSASLMechanism:    options.GetString(FANOUT_KAFKA_SASL_MECHANISM),
		FanoutKafkaCA:               options.GetString(FANOUT_KAFKA_CA),
		WebhookCacheSize:            options.GetInt(WEBHOOK_CACHE_SIZE),
		WebhookCacheTtl:             options.GetDuration(WEBHOOK_CACHE_TTL) * time.Second,
	}
}

func buildUrlBasePath(pathPrefix string, appName string) string {
	return fmt.Sprintf("/%s/%s/v1", pathPrefix, appName)
}
