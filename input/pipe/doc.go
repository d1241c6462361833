// Package pipe provides the pipe reader.
//
// The command runs as Config.Shell -c <command>; every read of its standard
// output is one chunk and the command exiting ends the reader. Stopping the
// reader kills the command. Standard error is not forwarded, but its last
// few KiB are logged when the command exits with an error.
//
//	splice -reader 'pipe:ffmpeg -i rtsp://cam/1 -c copy -f mpegts -' -writer udp://239.0.0.1:5000
package pipe
