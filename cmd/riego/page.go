package main

var page = `<html>
<head>
  <title>{{.Name}}</title>
  <style>
  body {
    background-color: black;
    color: white;
    font-family: sans-serif;
  }
  div {
    margin: auto;
    width: 610px;
  }
  button {
    height: 100px;
    width: 200px;
    font-size: 2em;
  }
  #reading {
    font-size: 5em;
  }
  </style>
</head>
<body>
  <div>
    <p style="font-size: 3em;">{{.Name}}</p>
    <p id="reading">{{printf "%.1f" .Reading.Temp}}C<br />{{printf "%.1f" .Reading.Humidity}}%</p>
    <p id="pump">Pump: {{.Pump}}</p>
    <p id="last">Last watering: {{if .LastWatering.IsZero}}never{{else}}{{.LastWatering.Format "Jan 2 15:04"}}{{end}}</p>
    <p id="deep">Next deep watering: {{if .NextDeep.IsZero}}disabled{{else}}{{.NextDeep.Format "Jan 2 15:04"}}{{end}}</p>
    <input type="text" id="dur" value="30s" />
    <button id="water">Water</button>
    <button id="stop">Stop</button>
  </div>
  <script>
    var ws = new WebSocket((location.protocol == "https:" ? "wss://" : "ws://") + location.host + "/stream");
    ws.onmessage = function(event) {
      var msg = JSON.parse(event.data);
      if (msg.Status) {
        var s = msg.Status;
        document.getElementById("reading").innerHTML = s.Reading.Temp.toFixed(1) + "C<br />" + s.Reading.Humidity.toFixed(1) + "%";
        document.getElementById("pump").innerText = "Pump: " + (s.Pump == 1 ? "watering" : "idle");
      }
    };
    document.getElementById("water").onclick = function() {
      ws.send(JSON.stringify({Water: document.getElementById("dur").value}));
    };
    document.getElementById("stop").onclick = function() {
      ws.send(JSON.stringify({Stop: true}));
    };
  </script>
</body>
</html>`
