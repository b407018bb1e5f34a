package taskname

const (
	// Notification tasks
	NotificationEmail    = "notification:email"
	NotificationSMS      = "notification:sms"
	NotificationWhatsApp = "notification:whatsapp"

	// Cron-driven ticks
	BillingResync = "billing:resync"
)

// Cron lease names. Kept separate from task types so a job rename never
// silently abandons a held lease.
const (
	LockOverdueSweep  = "cron:deliverable:overdue"
	LockBillingResync = "cron:billing:resync"
	LockMigration     = "schema:migrate"
)
