package constants

// Tick schedules in robfig/cron format with seconds.

// TickActiveHoursSpec polls the active-hours window once a minute.
const TickActiveHoursSpec = "0 * * * * *"

// TickHourSpec resets the hourly message counter.
const TickHourSpec = "0 0 * * * *"

// TickDaySpec resets the daily message counter at local midnight.
const TickDaySpec = "0 0 0 * * *"
