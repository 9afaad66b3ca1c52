// Package launcher makes sure exactly one background service process is
// started per user session.
//
// Any number of client processes may call Launcher.Ensure at the same time.
// A marker file created with exclusive-create semantics elects one starter;
// everyone else polls the service port until it answers or the wait times
// out. Markers left behind by a crashed starter are detected by checking the
// recorded PID and reclaimed by the next launcher.
package launcher
